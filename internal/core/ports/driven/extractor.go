package driven

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// Blob is document content fetched from the external byte store.
type Blob struct {
	// Ref is the opaque blob reference.
	Ref string

	// ContentType is the MIME type, when the store knows it.
	ContentType string

	// Data is the raw bytes.
	Data []byte
}

// AnalyzeOptions configures a single provider call.
type AnalyzeOptions struct {
	// ExtractTables enables table detection where supported.
	ExtractTables bool

	// ExtractFigures enables figure detection where supported.
	ExtractFigures bool
}

// ExtractionProvider is one document-analysis backend. The provider
// set is closed and selected by explicit configuration, never by
// runtime introspection.
//
// Implementations may include:
//   - Azure Document Intelligence (layout model)
//   - Unstructured partition API
//   - A local plain-text decoder as the lowest-priority fallback
type ExtractionProvider interface {
	// Name returns the provider identity recorded in attempt history
	// and on successful extraction sessions.
	Name() string

	// Analyze extracts the blob and normalises the provider's native
	// response into the common shape. Transient failures must be
	// wrapped with domain.ErrTransient; blobs the provider cannot
	// handle must return domain.ErrUnsupportedFormat.
	Analyze(ctx context.Context, blob Blob, opts AnalyzeOptions) (*domain.NormalizedExtraction, error)

	// Ping validates the provider is reachable. Used at startup
	// before committing to a provider order.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
