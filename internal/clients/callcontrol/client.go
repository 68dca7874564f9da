package callcontrol

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

const apiVersion = "2024-04-15"

// Client is a thin REST client for the call-automation service. Answering,
// recognizing and playing are acknowledged synchronously; their outcomes
// arrive later as callback events (see events.go).
type Client struct {
	endpoint                  string
	accessKey                 string
	cognitiveServicesEndpoint string
	httpClient                *http.Client
	logger                    *observability.Logger
}

// Config holds the call-automation service connection settings.
type Config struct {
	Endpoint                  string
	AccessKey                 string
	CognitiveServicesEndpoint string
}

func New(cfg Config, logger *observability.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("call-control endpoint is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("call-control access key is required")
	}
	return &Client{
		endpoint:                  cfg.Endpoint,
		accessKey:                 cfg.AccessKey,
		cognitiveServicesEndpoint: cfg.CognitiveServicesEndpoint,
		httpClient:                &http.Client{Timeout: 10 * time.Second},
		logger:                    logger,
	}, nil
}

// RecognizeRequest parameterizes one speech-recognition prompt.
type RecognizeRequest struct {
	TargetParticipant     string
	Prompt                string
	Voice                 string
	Language              string
	InitialSilenceTimeout time.Duration
	EndSilenceTimeout     time.Duration
	OperationContext      string
}

// PlayOptions parameterizes a play-to-all request.
type PlayOptions struct {
	Voice            string
	OperationContext string
}

type answerRequest struct {
	IncomingCallContext       string `json:"incomingCallContext"`
	CallbackURI               string `json:"callbackUri"`
	CognitiveServicesEndpoint string `json:"cognitiveServicesEndpoint,omitempty"`
}

type answerResponse struct {
	CallConnectionID string `json:"callConnectionId"`
}

// Answer answers an inbound call and returns the call connection identifier
// under which all later callback events for the call are keyed.
func (c *Client) Answer(ctx context.Context, incomingCallContext, callbackURI string) (string, error) {
	body := answerRequest{
		IncomingCallContext:       incomingCallContext,
		CallbackURI:               callbackURI,
		CognitiveServicesEndpoint: c.cognitiveServicesEndpoint,
	}

	var resp answerResponse
	url := fmt.Sprintf("%s/calling/callConnections:answer?api-version=%s", c.endpoint, apiVersion)
	if err := c.post(ctx, url, body, &resp); err != nil {
		return "", fmt.Errorf("failed to answer call: %w", err)
	}
	if resp.CallConnectionID == "" {
		return "", fmt.Errorf("answer response missing callConnectionId")
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: resp.CallConnectionID},
	), "call answered")
	return resp.CallConnectionID, nil
}

type textSource struct {
	Kind string `json:"kind"`
	Text struct {
		Text      string `json:"text"`
		VoiceName string `json:"voiceName,omitempty"`
	} `json:"text"`
}

func newTextSource(text, voice string) textSource {
	src := textSource{Kind: "text"}
	src.Text.Text = text
	src.Text.VoiceName = voice
	return src
}

type recognizeBody struct {
	RecognizeInputType string     `json:"recognizeInputType"`
	PlayPrompt         textSource `json:"playPrompt"`
	RecognizeOptions   struct {
		TargetParticipant struct {
			RawID string `json:"rawId"`
		} `json:"targetParticipant"`
		InitialSilenceTimeoutInSeconds int    `json:"initialSilenceTimeoutInSeconds"`
		SpeechLanguage                 string `json:"speechLanguage,omitempty"`
		SpeechOptions                  struct {
			EndSilenceTimeoutInMs int64 `json:"endSilenceTimeoutInMs"`
		} `json:"speechOptions"`
	} `json:"recognizeOptions"`
	OperationContext string `json:"operationContext,omitempty"`
}

// Recognize asks the service to play a prompt to the target participant and
// convert their spoken reply to text. The outcome arrives as a
// RecognizeCompleted or RecognizeFailed callback event.
func (c *Client) Recognize(ctx context.Context, callConnectionID string, req RecognizeRequest) error {
	body := recognizeBody{
		RecognizeInputType: "speech",
		PlayPrompt:         newTextSource(req.Prompt, req.Voice),
		OperationContext:   req.OperationContext,
	}
	body.RecognizeOptions.TargetParticipant.RawID = req.TargetParticipant
	body.RecognizeOptions.InitialSilenceTimeoutInSeconds = int(req.InitialSilenceTimeout.Seconds())
	body.RecognizeOptions.SpeechLanguage = req.Language
	body.RecognizeOptions.SpeechOptions.EndSilenceTimeoutInMs = req.EndSilenceTimeout.Milliseconds()

	url := fmt.Sprintf("%s/calling/callConnections/%s:recognize?api-version=%s",
		c.endpoint, callConnectionID, apiVersion)
	if err := c.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("failed to issue recognize request: %w", err)
	}
	return nil
}

type playBody struct {
	PlaySources      []textSource `json:"playSources"`
	PlayTo           []struct{}   `json:"playTo"`
	OperationContext string       `json:"operationContext,omitempty"`
}

// Play plays synthesized speech to all participants on the call. The outcome
// arrives as a PlayCompleted or PlayFailed callback event.
func (c *Client) Play(ctx context.Context, callConnectionID, text string, opts PlayOptions) error {
	body := playBody{
		PlaySources:      []textSource{newTextSource(text, opts.Voice)},
		PlayTo:           []struct{}{},
		OperationContext: opts.OperationContext,
	}

	url := fmt.Sprintf("%s/calling/callConnections/%s:play?api-version=%s",
		c.endpoint, callConnectionID, apiVersion)
	if err := c.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("failed to issue play request: %w", err)
	}
	return nil
}

// Hangup disconnects the call. With forEveryone the whole call is terminated,
// otherwise only this participant leaves.
func (c *Client) Hangup(ctx context.Context, callConnectionID string, forEveryone bool) error {
	var req *http.Request
	var err error
	if forEveryone {
		url := fmt.Sprintf("%s/calling/callConnections/%s:terminate?api-version=%s",
			c.endpoint, callConnectionID, apiVersion)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	} else {
		url := fmt.Sprintf("%s/calling/callConnections/%s?api-version=%s",
			c.endpoint, callConnectionID, apiVersion)
		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create hangup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hangup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hangup request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
