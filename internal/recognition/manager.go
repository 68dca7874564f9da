package recognition

import (
	"context"
	"fmt"
	"time"

	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/observability"
)

const (
	defaultInitialSilenceTimeout = 15 * time.Second
	defaultEndSilenceTimeout     = 500 * time.Millisecond
)

// Recognizer is the call-control surface the manager drives.
type Recognizer interface {
	Recognize(ctx context.Context, callConnectionID string, req callcontrol.RecognizeRequest) error
}

// Call is the session surface the manager needs: identity plus the session's
// remaining silence-retry budget.
type Call interface {
	ConnectionID() string
	CallerID() string
	TakeRetry() bool
}

// Config holds the speech-capture parameters shared by every prompt.
type Config struct {
	Voice                 string
	Language              string
	InitialSilenceTimeout time.Duration
	EndSilenceTimeout     time.Duration
}

// Manager issues speech-recognition prompts with uniform voice, language and
// silence-timeout settings, and arbitrates the per-call retry budget.
type Manager struct {
	client Recognizer
	cfg    Config
	logger *observability.Logger
}

func New(client Recognizer, cfg Config, logger *observability.Logger) *Manager {
	if cfg.InitialSilenceTimeout == 0 {
		cfg.InitialSilenceTimeout = defaultInitialSilenceTimeout
	}
	if cfg.EndSilenceTimeout == 0 {
		cfg.EndSilenceTimeout = defaultEndSilenceTimeout
	}
	return &Manager{client: client, cfg: cfg, logger: logger}
}

// Prompt plays the prompt to the caller and starts capturing their spoken
// reply. The outcome arrives asynchronously as a recognize callback event.
func (m *Manager) Prompt(ctx context.Context, call Call, prompt string) error {
	err := m.client.Recognize(ctx, call.ConnectionID(), callcontrol.RecognizeRequest{
		TargetParticipant:     call.CallerID(),
		Prompt:                prompt,
		Voice:                 m.cfg.Voice,
		Language:              m.cfg.Language,
		InitialSilenceTimeout: m.cfg.InitialSilenceTimeout,
		EndSilenceTimeout:     m.cfg.EndSilenceTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to start recognition: %w", err)
	}
	return nil
}

// Retry re-issues the prompt after a silence timeout if the call still has
// retry budget. It reports whether a retry was started; false means the
// budget is exhausted and the caller should wind the call down.
func (m *Manager) Retry(ctx context.Context, call Call, prompt string) (bool, error) {
	if !call.TakeRetry() {
		m.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "call_connection_id", Value: call.ConnectionID()},
		), "silence retry budget exhausted")
		return false, nil
	}

	m.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: call.ConnectionID()},
	), "re-prompting after silence timeout")
	if err := m.Prompt(ctx, call, prompt); err != nil {
		return false, err
	}
	return true, nil
}
