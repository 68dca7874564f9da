package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// DocumentSearcher is the search collaborator the document tool proxies to.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, entityTypes []string) (json.RawMessage, error)
}

type docSearchArgs struct {
	Query       string   `json:"query"`
	EntityTypes []string `json:"entity_types"`
}

// NewDocumentSearchTool returns a tool that forwards a query to the search
// collaborator and passes its JSON response back verbatim.
func NewDocumentSearchTool(searcher DocumentSearcher) Definition {
	return Definition{
		Name:        "search_documents",
		Description: "Search the company document index for passages relevant to a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search keywords in the caller's language",
				},
				"entity_types": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional entity-type filters",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var parsed docSearchArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return nil, fmt.Errorf("failed to parse search arguments: %w", err)
			}
			if parsed.Query == "" {
				return nil, fmt.Errorf("query is required")
			}

			result, err := searcher.Search(ctx, parsed.Query, parsed.EntityTypes)
			if err != nil {
				return nil, fmt.Errorf("document search failed: %w", err)
			}
			return result, nil
		},
	}
}
