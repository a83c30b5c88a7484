package domain

// Modality classifies the content of a chunk.
type Modality string

// Chunk modalities.
const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityTable Modality = "table"
)

// Valid returns true if the modality is one of the known values.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityTable:
		return true
	}
	return false
}

// PageRange is the inclusive page span a chunk was taken from.
type PageRange struct {
	// First is the 1-based first page.
	First int

	// Last is the 1-based last page.
	Last int
}

// Chunk is the smallest independently retrievable unit of document
// content. Chunks are immutable once written; re-ingestion creates a
// new generation and supersedes prior chunks for the document.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Generation is the chunk generation this chunk belongs to.
	Generation int

	// PageRange is the page span of the chunk content.
	PageRange PageRange

	// SectionHeading is the detected section this chunk came from.
	// Nil for fallback fixed-size windows.
	SectionHeading *string

	// Modality classifies the chunk content.
	Modality Modality

	// Content is the chunk text. For table chunks this is the
	// flattened table text; for image chunks the caption.
	Content string

	// OrdinalIndex is the chunk's position within its generation.
	// Ordinal order is preserved end-to-end within one document.
	OrdinalIndex int

	// Superseded marks chunks of earlier generations after
	// re-ingestion. Kept for audit, excluded from retrieval.
	Superseded bool
}
