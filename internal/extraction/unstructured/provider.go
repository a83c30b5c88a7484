// Package unstructured provides an extraction provider adapter for an
// Unstructured partition API server.
package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.ExtractionProvider = (*Provider)(nil)

// ProviderName identifies this provider in attempt history.
const ProviderName = "unstructured"

// Default configuration values.
const (
	DefaultBaseURL = "https://api.unstructuredapp.io"
	DefaultTimeout = 120 * time.Second
)

// pageSeparator joins page texts into FullText, matching the chunker's
// page index.
const pageSeparator = "\n\n"

// Config holds configuration for the Unstructured provider.
type Config struct {
	// BaseURL is the API base URL (default: hosted API). Point at a
	// self-hosted server for local deployments.
	BaseURL string

	// APIKey is the API key, optional for self-hosted servers.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// Provider calls the partition endpoint and normalises the element
// list into the common shape.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// New creates an Unstructured provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

// element is one partitioned element in the API response.
type element struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber  int    `json:"page_number"`
		ImageBase64 string `json:"image_base64,omitempty"`
		TextAsHTML  string `json:"text_as_html,omitempty"`
	} `json:"metadata"`
}

// Name returns the provider identity.
func (p *Provider) Name() string {
	return ProviderName
}

// Analyze partitions the blob and groups elements by page.
func (p *Provider) Analyze(ctx context.Context, blob driven.Blob, opts driven.AnalyzeOptions) (*domain.NormalizedExtraction, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("files", fileName(blob.Ref))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(blob.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("strategy", "hi_res"); err != nil {
		return nil, fmt.Errorf("write strategy field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/general/v0/general", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("unstructured-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: unstructured status %d", domain.ErrUnsupportedFormat, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: unstructured status %d", domain.ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unstructured status %d: %s", resp.StatusCode, string(body))
	}

	var elements []element
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return p.toCommonShape(elements, opts), nil
}

// toCommonShape groups elements into pages, tables and figures.
func (p *Provider) toCommonShape(elements []element, opts driven.AnalyzeOptions) *domain.NormalizedExtraction {
	out := &domain.NormalizedExtraction{Provider: ProviderName}

	pageText := make(map[int][]string)
	maxPage := 0

	for _, el := range elements {
		page := el.Metadata.PageNumber
		if page <= 0 {
			page = 1
		}
		if page > maxPage {
			maxPage = page
		}

		switch el.Type {
		case "Table":
			if opts.ExtractTables {
				out.Tables = append(out.Tables, domain.Table{
					Page: page,
					Rows: tableRows(el.Text),
				})
			}
		case "Image", "Figure":
			if opts.ExtractFigures {
				out.Figures = append(out.Figures, domain.Figure{
					Page:    page,
					Caption: strings.TrimSpace(el.Text),
				})
			}
		default:
			if text := strings.TrimSpace(el.Text); text != "" {
				pageText[page] = append(pageText[page], text)
			}
		}
	}

	pageTexts := make([]string, 0, maxPage)
	for n := 1; n <= maxPage; n++ {
		parts, ok := pageText[n]
		if !ok {
			continue
		}
		text := strings.Join(parts, "\n")
		out.Pages = append(out.Pages, domain.Page{Number: n, Text: text})
		pageTexts = append(pageTexts, text)
	}
	out.FullText = strings.Join(pageTexts, pageSeparator)

	return out
}

// tableRows splits flat table text into single-cell rows. The
// partition API flattens cell structure into lines; keeping one row
// per line preserves searchability without inventing columns.
func tableRows(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, []string{line})
	}
	return rows
}

// Ping validates the server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/healthcheck", http.NoBody)
	if err != nil {
		return fmt.Errorf("unstructured: create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unstructured: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unstructured: API returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// fileName derives a multipart file name from the blob reference.
func fileName(ref string) string {
	if idx := strings.LastIndexByte(ref, '/'); idx >= 0 {
		ref = ref[idx+1:]
	}
	if ref == "" {
		return "document"
	}
	return ref
}
