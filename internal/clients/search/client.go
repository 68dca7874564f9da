package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-agent-server/internal/observability"
)

// Client queries the document-search collaborator. Responses are opaque JSON
// handed back verbatim to the model as a tool result.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *observability.Logger
}

func New(endpoint, apiKey string, logger *observability.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

type searchRequest struct {
	Query       string   `json:"query"`
	EntityTypes []string `json:"entityTypes,omitempty"`
}

// Search submits a query with optional entity-type filters and returns the
// raw response body.
func (c *Client) Search(ctx context.Context, query string, entityTypes []string) (json.RawMessage, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "search_query", Value: query})

	bodyBytes, err := json.Marshal(searchRequest{Query: query, EntityTypes: entityTypes})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "search request failed", err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}
