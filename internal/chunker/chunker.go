// Package chunker splits normalised extractions into addressable
// chunks. Document classes with known structure are segmented along
// detected section boundaries; everything else falls back to
// fixed-size overlapping windows that preserve page boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/logger"
)

// DocumentClass selects the sectioning strategy.
type DocumentClass string

// Known document classes. Unrecognised classes use the window
// fallback.
const (
	ClassPatent  DocumentClass = "patent"
	ClassGeneric DocumentClass = "generic"
)

// DefaultWindowSize is the default number of characters per fallback
// window.
const DefaultWindowSize = 1200

// DefaultWindowOverlap is the default overlap between fallback
// windows in characters.
const DefaultWindowOverlap = 200

// Chunker splits a normalised extraction into chunks.
type Chunker struct {
	windowSize    int
	windowOverlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithWindowSize sets the fallback window size in characters.
func WithWindowSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.windowSize = size
		}
	}
}

// WithWindowOverlap sets the overlap between fallback windows.
func WithWindowOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.windowOverlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		windowSize:    DefaultWindowSize,
		windowOverlap: DefaultWindowOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay below the window size
	if c.windowOverlap >= c.windowSize {
		c.windowOverlap = c.windowSize / 4
	}

	return c
}

// Chunk splits the extraction into chunks for the given document
// class. DocumentID and Generation are left zero; the orchestrator
// stamps them before persisting. Ordinal indexes are assigned in
// emission order: text chunks first, then table and figure chunks.
func (c *Chunker) Chunk(ex *domain.NormalizedExtraction, class DocumentClass) []domain.Chunk {
	if ex == nil {
		return nil
	}

	pages := newPageIndex(ex.Pages)

	var chunks []domain.Chunk
	if sections := detectSections(ex.FullText, class); len(sections) > 0 {
		logger.Debug("Chunker: %d sections detected for class %q", len(sections), class)
		chunks = c.sectionChunks(sections, pages)
	} else {
		logger.Debug("Chunker: no structure for class %q, using windows", class)
		chunks = c.windowChunks(ex.FullText, pages)
	}

	ordinal := len(chunks)

	for _, table := range ex.Tables {
		content := flattenTable(table)
		if content == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:           uuid.New().String(),
			PageRange:    domain.PageRange{First: table.Page, Last: table.Page},
			Modality:     domain.ModalityTable,
			Content:      content,
			OrdinalIndex: ordinal,
		})
		ordinal++
	}

	for _, fig := range ex.Figures {
		if strings.TrimSpace(fig.Caption) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:           uuid.New().String(),
			PageRange:    domain.PageRange{First: fig.Page, Last: fig.Page},
			Modality:     domain.ModalityImage,
			Content:      strings.TrimSpace(fig.Caption),
			OrdinalIndex: ordinal,
		})
		ordinal++
	}

	return chunks
}

// sectionChunks emits chunks for detected sections. The primary
// section is split one chunk per enumerated sub-item; other sections
// are windowed when they exceed the window size.
func (c *Chunker) sectionChunks(sections []section, pages *pageIndex) []domain.Chunk {
	var chunks []domain.Chunk
	ordinal := 0

	emit := func(content string, heading string, start, end int) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		h := heading
		chunks = append(chunks, domain.Chunk{
			ID:             uuid.New().String(),
			PageRange:      pages.rangeFor(start, end),
			SectionHeading: &h,
			Modality:       domain.ModalityText,
			Content:        content,
			OrdinalIndex:   ordinal,
		})
		ordinal++
	}

	for _, sec := range sections {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			// A boundary with nothing behind it is dropped, not
			// emitted as an empty chunk
			continue
		}

		if sec.primary {
			items := splitEnumerated(sec.body)
			if len(items) > 1 {
				for _, item := range items {
					emit(item.text, sec.heading, sec.bodyStart+item.start, sec.bodyStart+item.end)
				}
				continue
			}
		}

		if len(body) <= c.windowSize {
			emit(body, sec.heading, sec.bodyStart, sec.bodyStart+len(sec.body))
			continue
		}

		for _, w := range slide(sec.body, c.windowSize, c.windowOverlap) {
			emit(w.text, sec.heading, sec.bodyStart+w.start, sec.bodyStart+w.end)
		}
	}

	return chunks
}

// windowChunks emits fixed-size overlapping windows over the full
// text. SectionHeading stays nil for fallback windows.
func (c *Chunker) windowChunks(text string, pages *pageIndex) []domain.Chunk {
	var chunks []domain.Chunk

	for i, w := range slide(text, c.windowSize, c.windowOverlap) {
		content := strings.TrimSpace(w.text)
		if content == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:           uuid.New().String(),
			PageRange:    pages.rangeFor(w.start, w.end),
			Modality:     domain.ModalityText,
			Content:      content,
			OrdinalIndex: i,
		})
	}

	// Reassign ordinals densely in case empty windows were skipped
	for i := range chunks {
		chunks[i].OrdinalIndex = i
	}

	return chunks
}

// window is one slice of text with its offsets into the source.
type window struct {
	text  string
	start int
	end   int
}

// slide produces overlapping windows over text. Window boundaries
// snap to rune starts so multi-byte text never splits mid-rune.
func slide(text string, size, overlap int) []window {
	if text == "" {
		return nil
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var out []window
	for start := 0; start < len(text); {
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
		if start >= len(text) {
			break
		}
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		out = append(out, window{text: text[start:end], start: start, end: end})
		if end == len(text) {
			break
		}
		start += step
	}
	return out
}

// flattenTable renders a table as tab-separated text for indexing.
func flattenTable(t domain.Table) string {
	var b strings.Builder
	if caption := strings.TrimSpace(t.Caption); caption != "" {
		b.WriteString(caption)
		b.WriteString("\n")
	}
	for _, row := range t.Rows {
		line := strings.TrimSpace(strings.Join(row, "\t"))
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// pageIndex maps byte offsets in the full text back to page numbers.
// It assumes FullText is the page texts joined with pageSeparator,
// which is how providers normalise their output.
type pageIndex struct {
	// starts[i] is the offset of page i+1 in the full text.
	starts []int
}

// pageSeparator joins page texts into FullText.
const pageSeparator = "\n\n"

func newPageIndex(pages []domain.Page) *pageIndex {
	idx := &pageIndex{}
	offset := 0
	for i, p := range pages {
		idx.starts = append(idx.starts, offset)
		offset += len(p.Text)
		if i < len(pages)-1 {
			offset += len(pageSeparator)
		}
	}
	return idx
}

// rangeFor returns the inclusive page span covering [start, end).
// Without page information the range is zero-valued.
func (idx *pageIndex) rangeFor(start, end int) domain.PageRange {
	if len(idx.starts) == 0 {
		return domain.PageRange{}
	}
	return domain.PageRange{
		First: idx.pageAt(start),
		Last:  idx.pageAt(end - 1),
	}
}

func (idx *pageIndex) pageAt(offset int) int {
	page := 1
	for i, s := range idx.starts {
		if offset >= s {
			page = i + 1
		}
	}
	return page
}
