package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/tools"
)

// ErrUnknownTool is returned when the model requests a tool that is not in
// the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ErrMalformedArguments is returned when the model's tool-call arguments are
// not a parseable JSON object.
var ErrMalformedArguments = errors.New("malformed tool arguments")

// Options parameterizes one dialogue flavor.
type Options struct {
	SystemPrompt       string
	UserPromptTemplate string
	MaxTokens          int64
	ToolRoundLimit     int
	Apology            string
}

// Client resolves one caller utterance to one natural-language reply,
// executing any tool calls the model requests along the way. The turn
// sequence of an exchange is discarded once the reply is obtained; nothing
// persists across utterances except the fixed system prompt.
type Client struct {
	chat     ChatService
	registry *tools.Registry
	opts     Options
	logger   *observability.Logger
}

func New(chat ChatService, registry *tools.Registry, opts Options, logger *observability.Logger) *Client {
	return &Client{
		chat:     chat,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Respond submits the utterance with the full tool catalog and loops until
// the model produces a normal completion. Tool rounds are capped; past the
// cap the configured apology is returned instead of looping further.
func (c *Client) Respond(ctx context.Context, utterance string) (string, error) {
	turns := []Turn{
		{Role: RoleSystem, Content: c.opts.SystemPrompt},
		{Role: RoleUser, Content: c.renderUserPrompt(utterance)},
	}
	declarations := c.registry.Definitions()

	for round := 0; ; round++ {
		completion, err := c.chat.Complete(ctx, Request{
			Turns:     turns,
			Tools:     declarations,
			MaxTokens: c.opts.MaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}

		if completion.FinishReason != FinishToolCalls {
			return completion.Content, nil
		}

		if round >= c.opts.ToolRoundLimit {
			c.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "tool_round_limit", Value: c.opts.ToolRoundLimit},
			), "tool-call round limit reached, returning apology")
			return c.opts.Apology, nil
		}

		turns = append(turns, Turn{
			Role:      RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			resultTurn, err := c.executeToolCall(ctx, call)
			if err != nil {
				return "", err
			}
			turns = append(turns, resultTurn)
		}
	}
}

func (c *Client) executeToolCall(ctx context.Context, call ToolCall) (Turn, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tool_name", Value: call.Name},
		observability.Field{Key: "tool_call_id", Value: call.ID},
	)

	def, ok := c.registry.Get(call.Name)
	if !ok {
		c.logger.Error(ctx, "model requested unregistered tool", ErrUnknownTool)
		return Turn{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	args := json.RawMessage(call.Arguments)
	if !json.Valid(args) || len(strings.TrimSpace(call.Arguments)) == 0 {
		c.logger.Error(ctx, "tool arguments are not valid JSON", ErrMalformedArguments)
		return Turn{}, fmt.Errorf("%w: tool %s", ErrMalformedArguments, call.Name)
	}

	result, err := def.Handler(ctx, args)
	if err != nil {
		return Turn{}, fmt.Errorf("tool %s failed: %w", call.Name, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return Turn{}, fmt.Errorf("failed to serialize result of tool %s: %w", call.Name, err)
	}

	c.logger.Info(ctx, "tool call resolved")
	return Turn{
		Role:       RoleTool,
		Content:    string(payload),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}, nil
}

func (c *Client) renderUserPrompt(utterance string) string {
	if c.opts.UserPromptTemplate == "" {
		return utterance
	}
	return strings.ReplaceAll(c.opts.UserPromptTemplate, "{utterance}", utterance)
}
