package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/syncache/internal/record"
)

// OriginHeader carries the client origin id on write requests so the server
// can stamp realtime broadcasts with it.
const OriginHeader = "X-Origin-ID"

// DefaultTimeout bounds every HTTP request made by HTTPSource.
const DefaultTimeout = 30 * time.Second

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// APIError is the standard error body returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// HTTPSource is a DataSource backed by /v1/collections/{name}/records.
type HTTPSource struct {
	BaseURL    string
	Collection string
	Origin     string
	HTTP       *http.Client
}

// NewHTTPSource creates a source for one collection.
func NewHTTPSource(baseURL, collection, origin string) *HTTPSource {
	return &HTTPSource{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Collection: collection,
		Origin:     origin,
		HTTP:       &http.Client{Timeout: DefaultTimeout},
	}
}

// FetchAll lists every record in the collection.
func (s *HTTPSource) FetchAll(ctx context.Context) ([]record.Record, error) {
	var raw []map[string]any
	if err := s.do(ctx, http.MethodGet, s.path(""), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.Collection, err)
	}
	out := make([]record.Record, len(raw))
	for i, m := range raw {
		out[i] = record.FromMap(m)
	}
	return out, nil
}

// Create posts a new record and returns the server's version of it.
func (s *HTTPSource) Create(ctx context.Context, input record.Record) (record.Record, error) {
	var raw map[string]any
	if err := s.do(ctx, http.MethodPost, s.path(""), input, &raw); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.Collection, err)
	}
	return record.FromMap(raw), nil
}

// Update patches the record with the given id.
func (s *HTTPSource) Update(ctx context.Context, id string, partial record.Record) (record.Record, error) {
	var raw map[string]any
	if err := s.do(ctx, http.MethodPatch, s.path(id), partial, &raw); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", s.Collection, id, err)
	}
	return record.FromMap(raw), nil
}

// Delete removes the record with the given id.
func (s *HTTPSource) Delete(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, s.path(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.Collection, id, err)
	}
	return nil
}

func (s *HTTPSource) path(id string) string {
	p := "/v1/collections/" + url.PathEscape(s.Collection) + "/records"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func (s *HTTPSource) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && s.Origin != "" {
		req.Header.Set(OriginHeader, s.Origin)
	}

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	default:
		return apiErr
	}
}
