package openai

import (
	"context"
	"fmt"

	"voice-agent-server/internal/dialogue"
	"voice-agent-server/internal/observability"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

// Client adapts the OpenAI chat-completions API to dialogue.ChatService.
type Client struct {
	api    openai.Client
	model  string
	logger *observability.Logger
}

func New(apiKey string, model string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("OpenAI model is required")
	}
	return &Client{
		api:    openai.NewClient(openaiOption.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req dialogue.Request) (dialogue.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: buildMessages(req.Turns),
		Tools:    buildTools(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error(ctx, "chat completion request failed", err)
		return dialogue.Completion{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return dialogue.Completion{}, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	completion := dialogue.Completion{
		FinishReason: choice.FinishReason,
		Content:      choice.Message.Content,
	}
	for _, call := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, dialogue.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return completion, nil
}

func buildMessages(turns []dialogue.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case dialogue.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		case dialogue.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case dialogue.RoleAssistant:
			messages = append(messages, assistantMessage(turn))
		case dialogue.RoleTool:
			messages = append(messages, openai.ToolMessage(turn.Content, turn.ToolCallID))
		}
	}
	return messages
}

func assistantMessage(turn dialogue.Turn) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if turn.Content != "" {
		assistant.Content.OfString = openai.String(turn.Content)
	}
	for _, call := range turn.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func buildTools(req dialogue.Request) []openai.ChatCompletionToolParam {
	if len(req.Tools) == 0 {
		return nil
	}
	params := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, def := range req.Tools {
		params = append(params, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	return params
}
