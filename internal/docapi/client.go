package docapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docfinder/internal/domain"
)

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	Upload    string
	Search    string
	Download  string
	Summarize string
}

// Config configures the document service client.
type Config struct {
	BaseURL         string
	Paths           Paths
	SuccessMarker   string
	DuplicateMarker string
	// Timeout of 0 leaves requests unbounded; failures are detected only
	// through transport errors or non-success statuses.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the upload, search, download and summarize endpoints.
type Client struct {
	baseURL         string
	paths           Paths
	successMarker   string
	duplicateMarker string
	client          *http.Client
}

// NewClient creates a new document service client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.SuccessMarker == "" || cfg.DuplicateMarker == "" {
		return nil, errors.New("success and duplicate markers are required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:         base,
		paths:           cfg.Paths,
		successMarker:   cfg.SuccessMarker,
		duplicateMarker: cfg.DuplicateMarker,
		client:          hc,
	}, nil
}

type searchHit struct {
	Name    string  `json:"문서명"`
	Score   float64 `json:"유사도"`
	Excerpt string  `json:"본문,omitempty"`
}

type searchResponse struct {
	Query   string          `json:"질의"`
	Results []searchHit     `json:"결과"`
	Message string          `json:"메시지,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Search issues one GET with the query and result bound. The body is read as
// text first so that a non-JSON payload can be surfaced verbatim.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("top_k", strconv.Itoa(topK))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.paths.Search)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}
	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &MalformedResponseError{Op: "search", Status: resp.StatusCode, Raw: string(raw), Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &ServerError{Op: "search", Status: resp.StatusCode, Detail: detailText(out.Detail, out.Error)}
	}
	if out.Error != "" {
		return nil, &ServerError{Op: "search", Status: resp.StatusCode, Detail: out.Error}
	}
	results := make([]domain.SearchResult, 0, len(out.Results))
	for _, h := range out.Results {
		results = append(results, domain.SearchResult{Name: h.Name, Score: h.Score, Excerpt: h.Excerpt})
	}
	return results, nil
}

// Download fetches the raw bytes of a document. The caller closes the reader.
func (c *Client) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("filename", name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.paths.Download)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		detail := "download failed"
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			detail += ": " + body.Error
		}
		return nil, &ServerError{Op: "download", Status: resp.StatusCode, Detail: detail}
	}
	return resp.Body, nil
}

type summarizeResponse struct {
	Keywords string `json:"keywords"`
	Summary  string `json:"summary"`
	Error    string `json:"error,omitempty"`
}

// Summarize posts the excerpt, source name and query and returns the
// generated keywords and summary.
func (c *Client) Summarize(ctx context.Context, in domain.SummaryRequest) (domain.Summary, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("encode summarize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.paths.Summarize), bytes.NewReader(data))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Summary{}, &TransportError{Op: "summarize", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Summary{}, &TransportError{Op: "summarize", Err: err}
	}
	var out summarizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Summary{}, &MalformedResponseError{Op: "summarize", Status: resp.StatusCode, Raw: string(raw), Err: err}
	}
	if out.Error != "" {
		return domain.Summary{}, &ServerError{Op: "summarize", Status: resp.StatusCode, Detail: out.Error}
	}
	if !isSuccess(resp.StatusCode) {
		return domain.Summary{}, &ServerError{Op: "summarize", Status: resp.StatusCode}
	}
	return domain.Summary{Keywords: out.Keywords, Text: out.Summary}, nil
}

func (c *Client) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// detailText renders FastAPI-style detail values, which may be a string or a
// list of validation objects.
func detailText(detail json.RawMessage, fallback string) string {
	if len(detail) == 0 || string(detail) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(detail, &s); err == nil {
		return s
	}
	return string(detail)
}
