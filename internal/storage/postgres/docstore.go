package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, container_id, blob_ref, status, error, generation,
	deleted, started_at, completed_at, created_at, updated_at`

// CreateDocument registers a document in pending state.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	now := s.store.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.Status = domain.StatusPending
	doc.UpdatedAt = doc.CreatedAt

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, container_id, blob_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, doc.ID, doc.ContainerID, doc.BlobRef, string(doc.Status), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID, soft-deleted included.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns non-deleted documents in a container.
func (s *documentStore) ListDocuments(ctx context.Context, containerID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+` FROM documents
		 WHERE container_id = $1 AND NOT deleted
		 ORDER BY created_at`, containerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SoftDeleteDocument marks a document deleted without removing rows.
func (s *documentStore) SoftDeleteDocument(ctx context.Context, id string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET deleted = TRUE, updated_at = $2 WHERE id = $1
	`, id, s.store.now().UTC())
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ClaimProcessing atomically moves the document from pending to
// processing and opens a session for the next generation. The row lock
// serialises duplicate at-least-once deliveries.
func (s *documentStore) ClaimProcessing(ctx context.Context, documentID string) (*domain.ExtractionSession, int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("beginning claim: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT status, generation, deleted FROM documents WHERE id = $1 FOR UPDATE", documentID)
	var status string
	var generation int
	var deleted bool
	if err := row.Scan(&status, &generation, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("locking document: %w", err)
	}

	switch {
	case deleted:
		return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentDeleted)
	case status == string(domain.StatusProcessing):
		return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrIngestInProgress)
	case !domain.ProcessingStatus(status).CanTransitionTo(domain.StatusProcessing):
		return nil, 0, fmt.Errorf("document %s in state %q: %w", documentID, status, domain.ErrInvalidInput)
	}

	now := s.store.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, started_at = $3, completed_at = NULL, updated_at = $3
		WHERE id = $1
	`, documentID, string(domain.StatusProcessing), now); err != nil {
		return nil, 0, fmt.Errorf("claiming document: %w", err)
	}

	session := domain.ExtractionSession{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Active:     true,
		StartedAt:  now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO extraction_sessions (id, document_id, active, started_at)
		VALUES ($1, $2, TRUE, $3)
	`, session.ID, documentID, now); err != nil {
		return nil, 0, fmt.Errorf("opening session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("committing claim: %w", err)
	}
	return &session, generation + 1, nil
}

// CompleteProcessing records the session, promotes the generation and
// supersedes earlier chunks.
func (s *documentStore) CompleteProcessing(ctx context.Context, documentID string, session *domain.ExtractionSession, generation int) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning completion: %w", err)
	}
	defer tx.Rollback()

	now := s.store.now().UTC()
	session.Active = false
	session.Status = domain.SessionSuccess
	session.CompletedAt = &now

	if err := saveSession(ctx, tx, session); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, generation = $3, error = '', completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, documentID, string(domain.StatusCompleted), generation, now, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("completing document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("document %s not processing: %w", documentID, domain.ErrInvalidInput)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chunks SET superseded = TRUE
		WHERE document_id = $1 AND generation < $2 AND NOT superseded
	`, documentID, generation); err != nil {
		return fmt.Errorf("superseding chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing completion: %w", err)
	}
	return nil
}

// FailProcessing records the failed session and stamps the document
// failed. The unpromoted generation stays unqueryable.
func (s *documentStore) FailProcessing(ctx context.Context, documentID string, session *domain.ExtractionSession, cause string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning failure: %w", err)
	}
	defer tx.Rollback()

	now := s.store.now().UTC()
	session.Active = false
	session.Status = domain.SessionFailed
	session.CompletedAt = &now

	if err := saveSession(ctx, tx, session); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, documentID, string(domain.StatusFailed), cause, now, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failing document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("document %s not processing: %w", documentID, domain.ErrInvalidInput)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing failure: %w", err)
	}
	return nil
}

// Resubmit moves a failed document back to pending.
func (s *documentStore) Resubmit(ctx context.Context, documentID string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, error = '', updated_at = $3
		WHERE id = $1 AND status = $4 AND NOT deleted
	`, documentID, string(domain.StatusPending), s.store.now().UTC(), string(domain.StatusFailed))
	if err != nil {
		return fmt.Errorf("resubmitting document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		// Distinguish missing, deleted and wrong-state documents.
		doc, err := s.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Deleted {
			return fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentDeleted)
		}
		return fmt.Errorf("document %s in state %q: %w", documentID, doc.Status, domain.ErrInvalidInput)
	}
	return nil
}

// GetActiveSession returns the in-flight session for a document.
func (s *documentStore) GetActiveSession(ctx context.Context, documentID string) (*domain.ExtractionSession, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, provider_used, status, active, attempts, started_at, completed_at
		FROM extraction_sessions WHERE document_id = $1 AND active
	`, documentID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active session for document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

// SaveChunks stores chunks for an in-flight generation.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chunk save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, generation, page_first, page_last,
			section_heading, modality, content, ordinal_index, superseded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		var heading sql.NullString
		if chunk.SectionHeading != nil {
			heading = sql.NullString{String: *chunk.SectionHeading, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Generation,
			chunk.PageRange.First, chunk.PageRange.Last,
			heading, string(chunk.Modality), chunk.Content,
			chunk.OrdinalIndex, chunk.Superseded,
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk save: %w", err)
	}
	return nil
}

const chunkColumns = `id, document_id, generation, page_first, page_last,
	section_heading, modality, content, ordinal_index, superseded`

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id = $1", id)
	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	return chunk, nil
}

// GetActiveChunks returns the chunks of the document's promoted
// generation in ordinal order.
func (s *documentStore) GetActiveChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.generation, c.page_first, c.page_last,
			c.section_heading, c.modality, c.content, c.ordinal_index, c.superseded
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = $1 AND c.generation = d.generation AND NOT c.superseded
		ORDER BY c.ordinal_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.ContainerID, &doc.BlobRef, &status, &doc.Error,
		&doc.Generation, &doc.Deleted, &startedAt, &completedAt,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = domain.ProcessingStatus(status)
	if startedAt.Valid {
		doc.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		doc.CompletedAt = &completedAt.Time
	}
	return &doc, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var heading sql.NullString
	var modality string
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Generation,
		&chunk.PageRange.First, &chunk.PageRange.Last,
		&heading, &modality, &chunk.Content,
		&chunk.OrdinalIndex, &chunk.Superseded); err != nil {
		return nil, err
	}
	if heading.Valid {
		chunk.SectionHeading = &heading.String
	}
	chunk.Modality = domain.Modality(modality)
	return &chunk, nil
}

func scanSession(row scanner) (*domain.ExtractionSession, error) {
	var session domain.ExtractionSession
	var status string
	var attemptsJSON []byte
	var completedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.DocumentID, &session.ProviderUsed,
		&status, &session.Active, &attemptsJSON,
		&session.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	session.Status = domain.SessionStatus(status)
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	if len(attemptsJSON) > 0 {
		if err := json.Unmarshal(attemptsJSON, &session.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshaling attempts: %w", err)
		}
	}
	return &session, nil
}

// saveSession writes the settled session state inside a transaction.
func saveSession(ctx context.Context, tx *sql.Tx, session *domain.ExtractionSession) error {
	attemptsJSON, err := json.Marshal(session.Attempts)
	if err != nil {
		return fmt.Errorf("marshaling attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE extraction_sessions
		SET provider_used = $2, status = $3, active = $4, attempts = $5, completed_at = $6
		WHERE id = $1
	`, session.ID, session.ProviderUsed, string(session.Status),
		session.Active, attemptsJSON, session.CompletedAt); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// isUniqueViolation detects Postgres unique constraint errors
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
