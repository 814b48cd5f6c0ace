// Package augment is the HTTP client for the context index service. The
// service is opaque to the indexer: exported state blobs are passed through
// untouched and only the add/remove/export/import operations are consumed.
package augment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// requestTimeout bounds every individual API call. Upload batches are kept
// small enough that this covers large files as well.
const requestTimeout = 2 * time.Minute

// addBatchSize is the number of files sent per upload request.
const addBatchSize = 100

// Client creates index handles against one tenant API URL.
// It implements domain.IndexProvider.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given tenant URL and bearer token.
func NewClient(apiURL, token string) (*Client, error) {
	if apiURL == "" || token == "" {
		return nil, fmt.Errorf("%w: API URL and token are required", domain.ErrMissingCredentials)
	}
	return &Client{
		baseURL:    strings.TrimRight(apiURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Create opens a fresh, empty index.
func (c *Client) Create(ctx context.Context) (domain.ContextIndex, error) {
	var out struct {
		IndexID string `json:"indexId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/index", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if out.IndexID == "" {
		return nil, fmt.Errorf("index service returned no index id")
	}
	return &Index{client: c, id: out.IndexID}, nil
}

// Import reconstructs an index handle from a previously exported state blob.
// The blob is passed through untouched.
func (c *Client) Import(ctx context.Context, state json.RawMessage) (domain.ContextIndex, error) {
	in := struct {
		State json.RawMessage `json:"state"`
	}{State: state}
	var out struct {
		IndexID string `json:"indexId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/index/import", in, &out); err != nil {
		return nil, fmt.Errorf("failed to import index state: %w", err)
	}
	if out.IndexID == "" {
		return nil, fmt.Errorf("index service returned no index id")
	}
	return &Index{client: c, id: out.IndexID}, nil
}

// Index is a handle on one remote index. It implements domain.ContextIndex.
type Index struct {
	client *Client
	id     string
}

// AddToIndex uploads files in batches and aggregates the per-batch results.
func (i *Index) AddToIndex(ctx context.Context, files []domain.File) (*domain.AddResult, error) {
	total := &domain.AddResult{}
	for start := 0; start < len(files); start += addBatchSize {
		end := start + addBatchSize
		if end > len(files) {
			end = len(files)
		}

		in := struct {
			Files []domain.File `json:"files"`
		}{Files: files[start:end]}
		var out struct {
			NewlyUploaded   int `json:"newlyUploaded"`
			AlreadyUploaded int `json:"alreadyUploaded"`
		}
		path := fmt.Sprintf("/v1/index/%s/files", i.id)
		if err := i.client.do(ctx, http.MethodPost, path, in, &out); err != nil {
			return nil, fmt.Errorf("failed to upload files %d-%d: %w", start, end-1, err)
		}
		total.NewlyUploaded += out.NewlyUploaded
		total.AlreadyUploaded += out.AlreadyUploaded
	}
	return total, nil
}

// RemoveFromIndex deletes paths from the index.
func (i *Index) RemoveFromIndex(ctx context.Context, paths []string) error {
	in := struct {
		Paths []string `json:"paths"`
	}{Paths: paths}
	path := fmt.Sprintf("/v1/index/%s/files/remove", i.id)
	if err := i.client.do(ctx, http.MethodPost, path, in, nil); err != nil {
		return fmt.Errorf("failed to remove files: %w", err)
	}
	return nil
}

// Export returns the opaque index state and its checkpoint ID.
func (i *Index) Export(ctx context.Context) (*domain.ExportedState, error) {
	var out struct {
		State        json.RawMessage `json:"state"`
		CheckpointID string          `json:"checkpointId"`
	}
	path := fmt.Sprintf("/v1/index/%s/export", i.id)
	if err := i.client.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("failed to export index state: %w", err)
	}
	return &domain.ExportedState{State: out.State, CheckpointID: out.CheckpointID}, nil
}

// do performs one JSON request/response round trip with bearer auth.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, errorBody(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorBody extracts the service's error message, falling back to the raw
// body.
func errorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error details"
	}
	var out struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &out) == nil && out.Error != "" {
		return out.Error
	}
	return strings.TrimSpace(string(raw))
}
