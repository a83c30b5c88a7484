// Package azuredi provides an extraction provider adapter for the
// Azure Document Intelligence layout API.
package azuredi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.ExtractionProvider = (*Provider)(nil)

// ProviderName identifies this provider in attempt history.
const ProviderName = "azuredi"

// Default configuration values.
const (
	DefaultModel      = "prebuilt-layout"
	DefaultAPIVersion = "2024-11-30"
	DefaultTimeout    = 120 * time.Second
	DefaultPollDelay  = 2 * time.Second
)

// pageSeparator joins page texts into FullText, matching the chunker's
// page index.
const pageSeparator = "\n\n"

// Config holds configuration for the Azure Document Intelligence
// provider.
type Config struct {
	// Endpoint is the resource endpoint (required), e.g.
	// https://myresource.cognitiveservices.azure.com.
	Endpoint string

	// APIKey is the resource key (required).
	APIKey string

	// Model is the analysis model (default: prebuilt-layout).
	Model string

	// APIVersion is the API version (default: 2024-11-30).
	APIVersion string

	// Timeout bounds one analyze call including polling.
	Timeout time.Duration

	// PollDelay is the delay between result polls.
	PollDelay time.Duration
}

// Provider calls the Document Intelligence analyze API and normalises
// the layout result into the common shape.
type Provider struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	model      string
	apiVersion string
	pollDelay  time.Duration
}

// New creates a Document Intelligence provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azuredi: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azuredi: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollDelay == 0 {
		cfg.PollDelay = DefaultPollDelay
	}

	return &Provider{
		client:     &http.Client{Timeout: cfg.Timeout},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		pollDelay:  cfg.PollDelay,
	}, nil
}

// analyzeRequest is the analyze API request body.
type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

// analyzeResult mirrors the subset of the layout result we consume.
type analyzeResult struct {
	Status        string `json:"status"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	AnalyzeResult *struct {
		Content string `json:"content"`
		Pages   []struct {
			PageNumber int `json:"pageNumber"`
			Lines      []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
		Tables []struct {
			RowCount        int `json:"rowCount"`
			ColumnCount     int `json:"columnCount"`
			BoundingRegions []struct {
				PageNumber int `json:"pageNumber"`
			} `json:"boundingRegions"`
			Cells []struct {
				RowIndex    int    `json:"rowIndex"`
				ColumnIndex int    `json:"columnIndex"`
				Content     string `json:"content"`
			} `json:"cells"`
		} `json:"tables"`
		Figures []struct {
			ID              string `json:"id"`
			BoundingRegions []struct {
				PageNumber int `json:"pageNumber"`
			} `json:"boundingRegions"`
			Caption *struct {
				Content string `json:"content"`
			} `json:"caption,omitempty"`
		} `json:"figures"`
	} `json:"analyzeResult,omitempty"`
}

// Name returns the provider identity.
func (p *Provider) Name() string {
	return ProviderName
}

// Analyze submits the blob for layout analysis and polls for the
// result.
func (p *Provider) Analyze(ctx context.Context, blob driven.Blob, opts driven.AnalyzeOptions) (*domain.NormalizedExtraction, error) {
	opURL, err := p.submit(ctx, blob)
	if err != nil {
		return nil, err
	}

	result, err := p.poll(ctx, opURL)
	if err != nil {
		return nil, err
	}

	return p.toCommonShape(result, opts), nil
}

// submit starts an analysis and returns the operation URL to poll.
func (p *Provider) submit(ctx context.Context, blob driven.Blob) (string, error) {
	reqBody := analyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(blob.Data),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		p.endpoint, p.model, p.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, body)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("azuredi: missing Operation-Location header")
	}
	return opURL, nil
}

// poll fetches the operation result until it settles.
func (p *Provider) poll(ctx context.Context, opURL string) (*analyzeResult, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read poll response: %w", domain.ErrTransient, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, body)
		}

		var result analyzeResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode poll response: %w", err)
		}

		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			if result.Error != nil && result.Error.Code == "InvalidContent" {
				return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, result.Error.Message)
			}
			msg := "analysis failed"
			if result.Error != nil {
				msg = result.Error.Message
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrTransient, msg)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollDelay):
		}
	}
}

// toCommonShape normalises the layout result.
func (p *Provider) toCommonShape(result *analyzeResult, opts driven.AnalyzeOptions) *domain.NormalizedExtraction {
	out := &domain.NormalizedExtraction{Provider: ProviderName}
	ar := result.AnalyzeResult
	if ar == nil {
		return out
	}

	pageTexts := make([]string, 0, len(ar.Pages))
	for _, page := range ar.Pages {
		lines := make([]string, 0, len(page.Lines))
		for _, line := range page.Lines {
			lines = append(lines, line.Content)
		}
		text := strings.Join(lines, "\n")
		out.Pages = append(out.Pages, domain.Page{Number: page.PageNumber, Text: text})
		pageTexts = append(pageTexts, text)
	}
	out.FullText = strings.Join(pageTexts, pageSeparator)

	if opts.ExtractTables {
		for _, table := range ar.Tables {
			rows := make([][]string, table.RowCount)
			for i := range rows {
				rows[i] = make([]string, table.ColumnCount)
			}
			cells := table.Cells
			sort.SliceStable(cells, func(i, j int) bool {
				if cells[i].RowIndex != cells[j].RowIndex {
					return cells[i].RowIndex < cells[j].RowIndex
				}
				return cells[i].ColumnIndex < cells[j].ColumnIndex
			})
			for _, cell := range cells {
				if cell.RowIndex < table.RowCount && cell.ColumnIndex < table.ColumnCount {
					rows[cell.RowIndex][cell.ColumnIndex] = cell.Content
				}
			}
			page := 0
			if len(table.BoundingRegions) > 0 {
				page = table.BoundingRegions[0].PageNumber
			}
			out.Tables = append(out.Tables, domain.Table{Page: page, Rows: rows})
		}
	}

	if opts.ExtractFigures {
		for _, fig := range ar.Figures {
			page := 0
			if len(fig.BoundingRegions) > 0 {
				page = fig.BoundingRegions[0].PageNumber
			}
			caption := ""
			if fig.Caption != nil {
				caption = fig.Caption.Content
			}
			out.Figures = append(out.Figures, domain.Figure{
				Page:     page,
				Caption:  caption,
				ImageRef: fig.ID,
			})
		}
	}

	return out
}

// Ping validates the endpoint is reachable and the key is accepted.
func (p *Provider) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/documentintelligence/documentModels?api-version=%s", p.endpoint, p.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("azuredi: create ping request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("azuredi: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azuredi: API returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// classifyStatus maps HTTP failures onto the retryability taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return fmt.Errorf("%w: azuredi status %d: %s", domain.ErrTransient, status, truncate(body))
	case status == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: azuredi status %d", domain.ErrUnsupportedFormat, status)
	default:
		return fmt.Errorf("azuredi status %d: %s", status, truncate(body))
	}
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
