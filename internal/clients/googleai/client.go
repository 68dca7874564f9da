package googleai

import (
	"context"
	"fmt"
	"strings"

	"voice-agent-server/internal/observability"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client generates post-call transcript summaries with Gemini.
type Client struct {
	apiKey string
	model  string
	logger *observability.Logger
}

func New(apiKey string, model string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("Gemini model is required")
	}
	return &Client{apiKey: apiKey, model: model, logger: logger}, nil
}

// SummarizeTranscript condenses one call transcript into a few sentences.
// Transcript lines are "caller:"/"agent:" prefixed, oldest first.
func (c *Client) SummarizeTranscript(ctx context.Context, lines []string) (string, error) {
	if len(lines) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}

	prompt := fmt.Sprintf(`
Summarize the following phone call transcript in at most three sentences.
Write the summary in the language of the transcript. Mention what the caller
asked and what the agent answered.

%s

Summary:`, strings.Join(lines, "\n"))

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error(ctx, "failed to generate call summary", err)
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no summary returned from Gemini")
	}
	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format")
	}
	return strings.TrimSpace(string(part)), nil
}
