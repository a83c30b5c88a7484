// Package plaintext provides a local extraction provider for plain
// text blobs. It is the lowest-priority fallback in the chain: no
// network calls, no tables, no figures.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.ExtractionProvider = (*Provider)(nil)

// ProviderName identifies this provider in attempt history.
const ProviderName = "plaintext"

// pageSeparator joins page texts into FullText, matching the chunker's
// page index.
const pageSeparator = "\n\n"

// Provider decodes UTF-8 text blobs locally.
type Provider struct{}

// New creates a plain text provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the provider identity.
func (p *Provider) Name() string {
	return ProviderName
}

// Analyze decodes the blob as UTF-8 text. Pages are split on form
// feed; a blob without form feeds is a single page. Binary content is
// rejected as unsupported so the chain reports a clean terminal error.
func (p *Provider) Analyze(_ context.Context, blob driven.Blob, _ driven.AnalyzeOptions) (*domain.NormalizedExtraction, error) {
	if len(blob.Data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", domain.ErrUnsupportedFormat)
	}
	if !looksLikeText(blob) {
		return nil, fmt.Errorf("%w: binary content", domain.ErrUnsupportedFormat)
	}

	text := strings.ReplaceAll(string(blob.Data), "\r\n", "\n")

	var pages []domain.Page
	var pageTexts []string
	for _, part := range strings.Split(text, "\f") {
		part = strings.Trim(part, "\n")
		if part == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: len(pages) + 1, Text: part})
		pageTexts = append(pageTexts, part)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: blob contains no text", domain.ErrUnsupportedFormat)
	}

	return &domain.NormalizedExtraction{
		Provider: ProviderName,
		Pages:    pages,
		FullText: strings.Join(pageTexts, pageSeparator),
	}, nil
}

// Ping is a no-op: the provider is local.
func (p *Provider) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// looksLikeText reports whether the blob is plausibly UTF-8 text.
func looksLikeText(blob driven.Blob) bool {
	if strings.HasPrefix(blob.ContentType, "text/") {
		return true
	}
	if !utf8.Valid(blob.Data) {
		return false
	}
	// NUL bytes mean binary even when the bytes happen to be valid
	// UTF-8
	return !bytes.ContainsRune(blob.Data, 0)
}
