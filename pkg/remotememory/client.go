// Package remotememory implements a best-effort, non-authoritative mirror
// and query client against an external OpenMemory-style HTTP service. The
// local episode store is always the source of truth: every call here is
// allowed to fail without affecting replay, and every attempt/success/
// failure is captured as an audit event rather than surfaced as a fatal
// error to the caller.
package remotememory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a single OpenMemory-style deployment at BaseURL. When
// APIKey is non-empty, both an Authorization bearer header and an x-api-key
// header are sent, since deployments vary in which one they check.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a Client with a 30s request timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// AddMemoryRequest is the body of POST <base_url>/memory/add.
type AddMemoryRequest struct {
	Content  string                 `json:"content"`
	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	UserID   string                 `json:"user_id,omitempty"`
}

// AddMemoryResponse is the tolerant shape of a /memory/add response: only
// ID is required, the rest are optional fields some deployments omit.
type AddMemoryResponse struct {
	ID             string   `json:"id"`
	PrimarySector  string   `json:"primary_sector,omitempty"`
	Sectors        []string `json:"sectors,omitempty"`
}

// QueryRequest is the body of POST <base_url>/memory/query.
type QueryRequest struct {
	Query    string   `json:"query"`
	K        int      `json:"k,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// QueryHit is one normalized result row. Content is retained only so the
// raw response artifact can be written; callers that print results must
// only expose {id, score, content_hash} per the redaction contract this
// package shares with the rest of the boundary.
type QueryHit struct {
	ID      string
	Content string
	Score   float64
}

func (c *Client) endpoint(path string) string {
	base := c.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("x-api-key", c.APIKey)
}

// AddMemory performs the add-memory operation. The caller is responsible
// for audit event emission (see Mirror in mirror.go); this method only
// speaks the wire protocol.
func (c *Client) AddMemory(ctx context.Context, body AddMemoryRequest) (AddMemoryResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: marshal add-memory request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/memory/add"), bytes.NewReader(payload))
	if err != nil {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: build add-memory request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: add-memory transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: read add-memory response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: add-memory status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out AddMemoryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: decode add-memory response: %w", err)
	}
	if out.ID == "" {
		return AddMemoryResponse{}, fmt.Errorf("remotememory: add-memory response missing id")
	}
	return out, nil
}

// RawQuery performs the query operation and returns the raw response body
// alongside its tolerantly-parsed hits. The raw bytes are what callers hash
// and persist as the response artifact; QueryHit.Content must never reach
// the audit log.
func (c *Client) RawQuery(ctx context.Context, body QueryRequest) ([]byte, []QueryHit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("remotememory: marshal query request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/memory/query"), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("remotememory: build query request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("remotememory: query transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("remotememory: read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, nil, fmt.Errorf("remotememory: query status=%d body=%s", resp.StatusCode, string(respBody))
	}

	hits, err := parseQueryResponse(respBody)
	if err != nil {
		return respBody, nil, err
	}
	return respBody, hits, nil
}

// parseQueryResponse tolerantly extracts hits from a query response:
// an array at the root, or the value of the first of
// matches/memories/results/items/data that holds an array (an empty array
// included, which yields no hits), or a single-object fallback. Items
// missing an id are dropped.
func parseQueryResponse(raw []byte) ([]QueryHit, error) {
	var root interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("remotememory: decode query response: %w", err)
	}

	items := extractItems(root)
	var hits []QueryHit
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id := firstString(obj, "id", "memory_id")
		if id == "" {
			continue
		}
		hits = append(hits, QueryHit{
			ID:      id,
			Content: firstString(obj, "content", "text"),
			Score:   firstFloat(obj, "score", "salience"),
		})
	}
	return hits, nil
}

func extractItems(root interface{}) []interface{} {
	if arr, ok := root.([]interface{}); ok {
		return arr
	}
	obj, ok := root.(map[string]interface{})
	if !ok {
		return nil
	}
	for _, key := range []string{"matches", "memories", "results", "items", "data"} {
		if arr, ok := obj[key].([]interface{}); ok {
			return arr
		}
	}
	return []interface{}{obj}
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(obj map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := obj[k].(float64); ok {
			return v
		}
	}
	return 0
}
