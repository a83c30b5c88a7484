// Package postgres provides the production storage backend. One
// database holds document metadata, chunk generations, per-slot
// embedding tables, trigram and full-text indexes, and durable
// conversation turns.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/storage/postgres/migrations"
)

// slotProviderPattern restricts provider names that become part of a
// table identifier.
var slotProviderPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// fullTextConfigs is the allowlist of text-search configurations the
// query layer may name. Each has a matching expression index.
var fullTextConfigs = map[string]bool{
	"english": true,
	"russian": true,
	"simple":  true,
}

// Store is a unified Postgres-based storage that provides access to
// all storage interfaces through wrapper types.
type Store struct {
	db    *sql.DB
	slots map[domain.SlotKey]string
	now   func() time.Time
}

// NewStore opens a Postgres store, runs migrations and provisions one
// fixed-width embedding table per configured slot.
func NewStore(ctx context.Context, connString string, slots []domain.SlotKey) (*Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s, err := newStore(db, slots)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.provisionSlots(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("provisioning slots: %w", err)
	}

	return s, nil
}

// NewStoreWithDB wraps an existing database handle without running
// migrations. Used by tests.
func NewStoreWithDB(db *sql.DB, slots []domain.SlotKey) (*Store, error) {
	return newStore(db, slots)
}

func newStore(db *sql.DB, slots []domain.SlotKey) (*Store, error) {
	s := &Store{
		db:    db,
		slots: make(map[domain.SlotKey]string, len(slots)),
		now:   time.Now,
	}
	for _, slot := range slots {
		table, err := slotTableName(slot)
		if err != nil {
			return nil, err
		}
		s.slots[slot] = table
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping validates the database is reachable. Used at startup.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// VectorStore returns a VectorSlotStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorSlotStore {
	return &vectorStore{store: s}
}

// TextSearcher returns a TextSearcher interface backed by this store.
func (s *Store) TextSearcher() driven.TextSearcher {
	return &textSearcher{store: s}
}

// ConversationStore returns a ConversationStore interface backed by
// this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(ctx context.Context, fsys embed.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// provisionSlots creates one fixed-width vector table per configured
// slot. The width is baked into the column type, so a misconfigured
// provider fails on write instead of silently mixing widths.
func (s *Store) provisionSlots(ctx context.Context) error {
	for slot, table := range s.slots {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				chunk_id  TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
				embedding vector(%d) NOT NULL
			)
		`, table, slot.Dimension)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating slot table %s: %w", table, err)
		}
	}
	return nil
}

// slotTableName derives the embedding table name for a slot, for
// example embeddings_openai_1536.
func slotTableName(slot domain.SlotKey) (string, error) {
	if !slotProviderPattern.MatchString(slot.Provider) {
		return "", fmt.Errorf("%w: slot provider %q is not a valid identifier",
			domain.ErrInvalidProviderConfig, slot.Provider)
	}
	if slot.Dimension <= 0 {
		return "", fmt.Errorf("%w: slot %s has non-positive dimension",
			domain.ErrInvalidProviderConfig, slot)
	}
	return fmt.Sprintf("embeddings_%s_%d", slot.Provider, slot.Dimension), nil
}

// Every search shares the same shape: chunks joined to their document,
// filtered to the promoted generation of live, completed documents.
const (
	activeChunkFrom = `
	FROM chunks c
	JOIN documents d ON d.id = c.document_id`

	activeChunkWhere = `
	WHERE NOT c.superseded
	  AND c.generation = d.generation
	  AND NOT d.deleted
	  AND d.status = 'completed'`
)

// scopeClauses appends container and modality restrictions to a query.
// Placeholders continue from argIndex.
func scopeClauses(scope driven.SearchScope, args []any, argIndex int) (string, []any, int) {
	var sb strings.Builder
	if len(scope.ContainerIDs) > 0 {
		placeholders := make([]string, len(scope.ContainerIDs))
		for i, id := range scope.ContainerIDs {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, id)
			argIndex++
		}
		fmt.Fprintf(&sb, " AND d.container_id IN (%s)", strings.Join(placeholders, ", "))
	}
	if scope.Modality != nil {
		fmt.Fprintf(&sb, " AND c.modality = $%d", argIndex)
		args = append(args, string(*scope.Modality))
		argIndex++
	}
	return sb.String(), args, argIndex
}
