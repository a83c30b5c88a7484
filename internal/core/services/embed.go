package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/logger"
)

// Embedding batch parameters.
const (
	// DefaultEmbedBatchSize is how many chunks go into one provider
	// call.
	DefaultEmbedBatchSize = 64

	// DefaultEmbedRetries is the number of retries per batch on
	// transient provider errors.
	DefaultEmbedRetries = 3

	// DefaultEmbedRetryDelay is the initial backoff before a retry.
	DefaultEmbedRetryDelay = 1 * time.Second
)

// EmbedWriterOption configures the embed writer.
type EmbedWriterOption func(*EmbedWriter)

// WithEmbedBatchSize overrides the provider batch size.
func WithEmbedBatchSize(size int) EmbedWriterOption {
	return func(w *EmbedWriter) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithEmbedRetries overrides the transient retry count.
func WithEmbedRetries(retries int) EmbedWriterOption {
	return func(w *EmbedWriter) {
		if retries >= 0 {
			w.retries = retries
		}
	}
}

// WithMediaEmbedder sets the multimodal provider that embeds image
// and table chunks into its own slot. Without one, non-text chunks
// are embedded by the text provider.
func WithMediaEmbedder(provider driven.EmbeddingService) EmbedWriterOption {
	return func(w *EmbedWriter) {
		w.media = provider
	}
}

// EmbedWriter batch-embeds chunks and persists the vectors into the
// slot store. Text chunks go to the primary text provider; image and
// table chunks go to the multimodal provider when one is configured.
// Each provider writes its own (provider, dimension) slot, and the
// two run concurrently.
type EmbedWriter struct {
	vectors driven.VectorSlotStore
	text    driven.EmbeddingService
	media   driven.EmbeddingService

	batchSize  int
	retries    int
	retryDelay time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEmbedWriter creates an embed writer for the primary text
// provider.
func NewEmbedWriter(vectors driven.VectorSlotStore, text driven.EmbeddingService, opts ...EmbedWriterOption) *EmbedWriter {
	w := &EmbedWriter{
		vectors:    vectors,
		text:       text,
		batchSize:  DefaultEmbedBatchSize,
		retries:    DefaultEmbedRetries,
		retryDelay: DefaultEmbedRetryDelay,
		sleep:      sleepFor,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteChunks embeds the chunks and stores the vectors. Chunks are
// routed by modality; a transient provider failure is retried with
// backoff while a dimension mismatch is fatal immediately. Any error
// returned here ends the ingestion attempt as failed.
func (w *EmbedWriter) WriteChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var textChunks, mediaChunks []domain.Chunk
	for _, chunk := range chunks {
		switch chunk.Modality {
		case domain.ModalityText:
			textChunks = append(textChunks, chunk)
		default:
			mediaChunks = append(mediaChunks, chunk)
		}
	}
	if w.media == nil && len(mediaChunks) > 0 {
		logger.Debug("No multimodal embedder configured, embedding %d non-text chunks as text",
			len(mediaChunks))
		textChunks = append(textChunks, mediaChunks...)
		mediaChunks = nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(textChunks) > 0 {
		g.Go(func() error {
			return w.EmbedAndStore(gctx, textChunks, w.text)
		})
	}
	if len(mediaChunks) > 0 {
		g.Go(func() error {
			return w.EmbedAndStore(gctx, mediaChunks, w.media)
		})
	}
	return g.Wait()
}

// EmbedAndStore batch-embeds the chunks with one provider and writes
// the vectors into that provider's slot.
func (w *EmbedWriter) EmbedAndStore(ctx context.Context, chunks []domain.Chunk, provider driven.EmbeddingService) error {
	name := provider.ProviderName()
	dimension := provider.Dimensions()

	for start := 0; start < len(chunks); start += w.batchSize {
		end := start + w.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := w.embedBatch(ctx, batch, provider)
		if err != nil {
			return fmt.Errorf("embed batch with %s: %w", name, err)
		}

		embeddings := make([]domain.Embedding, len(batch))
		for i, chunk := range batch {
			embeddings[i] = domain.Embedding{
				ChunkID:   chunk.ID,
				Provider:  name,
				Dimension: dimension,
				Vector:    vectors[i],
			}
			if err := embeddings[i].Validate(); err != nil {
				// Slot integrity violation, fatal and never
				// retried.
				return err
			}
		}

		if err := w.vectors.UpsertEmbeddings(ctx, embeddings); err != nil {
			return fmt.Errorf("store embeddings for %s: %w", name, err)
		}

		logger.Debug("Embedded %d chunks into slot %s/%d", len(batch), name, dimension)
	}
	return nil
}

// embedBatch calls the provider with transient retries.
func (w *EmbedWriter) embedBatch(ctx context.Context, batch []domain.Chunk, provider driven.EmbeddingService) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			delay := w.retryDelay * time.Duration(1<<(attempt-1))
			logger.Debug("Retrying embedding batch with %s in %v (attempt %d/%d)",
				provider.ProviderName(), delay, attempt, w.retries)
			if err := w.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		vectors, err := provider.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("provider %s returned %d vectors for %d inputs",
					provider.ProviderName(), len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err

		var mismatch *domain.DimensionMismatchError
		if errors.As(err, &mismatch) {
			return nil, err
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// sleepFor waits for d or until ctx is done.
func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
