package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/chunker"
	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/core/ports/driving"
	"github.com/quarrydocs/quarry/internal/logger"
)

// DefaultWorkers is the default ingestion worker pool size.
const DefaultWorkers = 4

// Progress estimates reported by the status query. The pipeline does
// not report fine-grained progress, so processing is a coarse
// midpoint.
const (
	progressPending    = 0.0
	progressProcessing = 0.5
	progressDone       = 1.0
)

// Extractor runs the provider chain for one blob. Implemented by
// extraction.Chain.
type Extractor interface {
	Extract(ctx context.Context, blob driven.Blob) (*domain.NormalizedExtraction, []domain.AttemptRecord, error)
}

var _ driving.IngestionService = (*Orchestrator)(nil)

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Orchestrator drives documents through the ingestion pipeline:
// claim, fetch, extract, chunk, embed, complete. Tasks arrive over an
// at-least-once queue, so every step is idempotent under duplicate
// delivery; the store's atomic claim coalesces concurrent attempts on
// the same document.
type Orchestrator struct {
	docs      driven.DocumentStore
	blobs     driven.BlobStore
	queue     driven.TaskQueue
	extractor Extractor
	chunks    *chunker.Chunker
	embedder  *EmbedWriter

	workers int
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(
	docs driven.DocumentStore,
	blobs driven.BlobStore,
	queue driven.TaskQueue,
	extractor Extractor,
	chunks *chunker.Chunker,
	embedder *EmbedWriter,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		docs:      docs,
		blobs:     blobs,
		queue:     queue,
		extractor: extractor,
		chunks:    chunks,
		embedder:  embedder,
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit registers the document if it is not known yet and enqueues
// an ingestion task. Safe to call repeatedly: an already registered
// document is only re-enqueued, and the claim coalesces duplicates at
// processing time.
func (o *Orchestrator) Submit(ctx context.Context, task domain.IngestionTask) error {
	if task.DocumentID == "" || task.BlobRef == "" {
		return fmt.Errorf("%w: document ID and blob ref are required", domain.ErrInvalidInput)
	}

	doc, err := o.docs.GetDocument(ctx, task.DocumentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		doc = &domain.Document{
			ID:          task.DocumentID,
			ContainerID: task.ContainerID,
			BlobRef:     task.BlobRef,
			Status:      domain.StatusPending,
		}
		if err := o.docs.CreateDocument(ctx, doc); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("register document: %w", err)
		}
	case err != nil:
		return fmt.Errorf("look up document: %w", err)
	case doc.Deleted:
		return domain.ErrDocumentDeleted
	}

	if err := o.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue ingestion task: %w", err)
	}
	logger.Debug("Enqueued ingestion task for document %s", task.DocumentID)
	return nil
}

// Resubmit moves a failed document back to pending and enqueues a
// fresh task. The next successful run writes a new chunk generation
// and supersedes the old one.
func (o *Orchestrator) Resubmit(ctx context.Context, documentID string) error {
	if err := o.docs.Resubmit(ctx, documentID); err != nil {
		return err
	}

	doc, err := o.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("look up document: %w", err)
	}

	task := domain.IngestionTask{
		DocumentID:  doc.ID,
		BlobRef:     doc.BlobRef,
		ContainerID: doc.ContainerID,
	}
	if err := o.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue ingestion task: %w", err)
	}
	return nil
}

// Status answers the status query for a document.
func (o *Orchestrator) Status(ctx context.Context, documentID string) (*domain.StatusReport, error) {
	doc, err := o.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &domain.StatusReport{
		DocumentID:  doc.ID,
		Status:      doc.Status,
		Error:       doc.Error,
		StartedAt:   doc.StartedAt,
		CompletedAt: doc.CompletedAt,
	}
	switch doc.Status {
	case domain.StatusPending:
		report.ProgressEstimate = progressPending
	case domain.StatusProcessing:
		report.ProgressEstimate = progressProcessing
	default:
		report.ProgressEstimate = progressDone
	}
	return report, nil
}

// Run consumes the task queue with the worker pool until ctx is done
// or the queue closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Section("Ingestion workers")
	logger.Info("Starting %d ingestion workers", o.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.workers; i++ {
		worker := i
		g.Go(func() error {
			return o.runWorker(gctx, worker)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runWorker(ctx context.Context, worker int) error {
	for {
		delivery, err := o.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Info("Worker %d stopping: %v", worker, err)
			return nil
		}
		o.handleDelivery(ctx, delivery)
	}
}

// handleDelivery processes one task delivery and settles it. Ack for
// every outcome the queue cannot improve by redelivering, Nack only
// when a retry could help before the claim was taken.
func (o *Orchestrator) handleDelivery(ctx context.Context, delivery driven.TaskDelivery) {
	task := delivery.Task()

	session, generation, err := o.docs.ClaimProcessing(ctx, task.DocumentID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIngestInProgress):
			// Duplicate delivery coalesces onto the in-flight
			// session.
			logger.Debug("Document %s already being ingested, dropping duplicate task", task.DocumentID)
			o.settle(delivery.Ack)
		case errors.Is(err, domain.ErrDocumentDeleted),
			errors.Is(err, domain.ErrNotFound),
			errors.Is(err, domain.ErrInvalidInput):
			logger.Debug("Dropping ingestion task for document %s: %v", task.DocumentID, err)
			o.settle(delivery.Ack)
		default:
			logger.Warn("Claim failed for document %s, returning task for redelivery: %v",
				task.DocumentID, err)
			o.settle(delivery.Nack)
		}
		return
	}

	logger.Info("Ingesting document %s (generation %d)", task.DocumentID, generation)

	if err := o.process(ctx, task, session, generation); err != nil {
		cause := err.Error()
		if ctx.Err() != nil {
			cause = fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err()).Error()
		}
		logger.Warn("Ingestion of document %s failed: %s", task.DocumentID, cause)
		if failErr := o.docs.FailProcessing(context.WithoutCancel(ctx), task.DocumentID, session, cause); failErr != nil {
			logger.Error("Recording ingestion failure for document %s: %v", task.DocumentID, failErr)
		}
		o.settle(delivery.Ack)
		return
	}

	if err := o.docs.CompleteProcessing(ctx, task.DocumentID, session, generation); err != nil {
		logger.Error("Completing ingestion of document %s: %v", task.DocumentID, err)
		o.settle(delivery.Nack)
		return
	}

	logger.Info("Document %s ingested (generation %d promoted)", task.DocumentID, generation)
	o.settle(delivery.Ack)
}

// process runs the pipeline for a claimed document. Returned errors
// end the attempt as failed; the claim is already taken so redelivery
// cannot help.
func (o *Orchestrator) process(ctx context.Context, task domain.IngestionTask, session *domain.ExtractionSession, generation int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blob, err := o.blobs.Fetch(ctx, task.BlobRef)
	if err != nil {
		return fmt.Errorf("fetch blob %s: %w", task.BlobRef, err)
	}

	extraction, attempts, err := o.extractor.Extract(ctx, blob)
	session.Attempts = attempts
	if err != nil {
		return err
	}
	session.ProviderUsed = extraction.Provider

	class := chunker.Classify(extraction.FullText)
	chunks := o.chunks.Chunk(extraction, class)
	for i := range chunks {
		chunks[i].DocumentID = task.DocumentID
		chunks[i].Generation = generation
	}
	logger.Debug("Document %s chunked as %s: %d chunks", task.DocumentID, class, len(chunks))

	if err := o.docs.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	if o.embedder != nil {
		if err := o.embedder.WriteChunks(ctx, chunks); err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
	}
	return nil
}

// settle invokes an Ack or Nack and logs when the queue refuses it.
func (o *Orchestrator) settle(fn func() error) {
	if err := fn(); err != nil {
		logger.Debug("Settling task delivery: %v", err)
	}
}
