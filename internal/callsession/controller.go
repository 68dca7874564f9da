package callsession

import (
	"context"
	"fmt"
	"strings"

	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/monitor"
	"voice-agent-server/internal/observability"
)

// Operation context marking the goodbye announcement; its play-completion
// callback triggers the hangup.
const opContextFarewell = "farewell"

// End reasons recorded on the call row.
const (
	EndReasonCallerHangup      = "caller_hangup"
	EndReasonSilenceExhausted  = "silence_budget_exhausted"
	EndReasonRecognitionFailed = "recognition_failed"
)

// Controller drives every live call through its lifecycle: answer, greet,
// capture speech, respond, and wind down. One controller instance serves all
// calls; per-call state lives in the session registry. Unknown connection IDs
// are ignored, so replayed or late callback events are harmless.
type Controller struct {
	calls       CallControl
	speech      SpeechCapture
	responder   Responder
	store       CallStore
	postCall    PostCallHandler
	broadcaster Broadcaster
	registry    *Registry
	profile     config.AgentProfile
	logger      *observability.Logger
}

func NewController(calls CallControl, speech SpeechCapture, responder Responder, callStore CallStore,
	postCall PostCallHandler, broadcaster Broadcaster, registry *Registry, profile config.AgentProfile,
	logger *observability.Logger) *Controller {
	return &Controller{
		calls:       calls,
		speech:      speech,
		responder:   responder,
		store:       callStore,
		postCall:    postCall,
		broadcaster: broadcaster,
		registry:    registry,
		profile:     profile,
		logger:      logger,
	}
}

// Registry exposes the live-session registry for handlers.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// HandleIncomingCall answers the call and registers a fresh session keyed by
// the connection ID the service assigned.
func (c *Controller) HandleIncomingCall(ctx context.Context, callerID, incomingCallContext, callbackURI string) error {
	connectionID, err := c.calls.Answer(ctx, incomingCallContext, callbackURI)
	if err != nil {
		return fmt.Errorf("failed to answer incoming call: %w", err)
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: connectionID},
		observability.Field{Key: "caller_id", Value: callerID},
	)

	call, err := c.store.CreateCall(ctx, connectionID, callerID)
	if err != nil {
		return fmt.Errorf("failed to persist call: %w", err)
	}

	session := NewSession(call.ID, connectionID, callerID, c.profile.RetryBudget)
	c.registry.Add(session)
	c.logger.Info(ctx, "call answered, session registered")
	c.broadcast(ctx, session, "answering", callerID)
	return nil
}

// HandleCallConnected greets the caller and starts listening for their first
// utterance.
func (c *Controller) HandleCallConnected(ctx context.Context, connectionID string) error {
	session, ok := c.session(ctx, connectionID, "CallConnected")
	if !ok {
		return nil
	}

	session.SetState(StatePrompting)
	c.broadcast(ctx, session, "prompting", c.profile.Greeting)

	session.SetLastPrompt(c.profile.Greeting)
	if err := c.speech.Prompt(ctx, session, c.profile.Greeting); err != nil {
		return fmt.Errorf("failed to start greeting recognition: %w", err)
	}
	session.SetState(StateAwaitingRecognition)
	return nil
}

// HandleRecognizeCompleted resolves the recognized utterance to a spoken
// reply and listens again. Empty utterances never reach the model; depending
// on policy they are silently dropped or the last prompt is replayed.
func (c *Controller) HandleRecognizeCompleted(ctx context.Context, connectionID, text string) error {
	session, ok := c.session(ctx, connectionID, "RecognizeCompleted")
	if !ok {
		return nil
	}

	utterance := strings.TrimSpace(text)
	if utterance == "" {
		return c.handleEmptyUtterance(ctx, session)
	}

	session.SetState(StateResponding)
	c.broadcast(ctx, session, "responding", utterance)

	if _, err := c.store.AddCallTurn(ctx, session.CallID, "caller", utterance); err != nil {
		c.logger.Error(ctx, "failed to persist caller turn", err)
	}

	reply, err := c.responder.Respond(ctx, utterance)
	if err != nil {
		session.SetState(StateAwaitingRecognition)
		return fmt.Errorf("failed to resolve reply: %w", err)
	}

	if _, err := c.store.AddCallTurn(ctx, session.CallID, "agent", reply); err != nil {
		c.logger.Error(ctx, "failed to persist agent turn", err)
	}

	session.SetState(StatePrompting)
	c.broadcast(ctx, session, "prompting", reply)

	session.SetLastPrompt(reply)
	if err := c.speech.Prompt(ctx, session, reply); err != nil {
		return fmt.Errorf("failed to start reply recognition: %w", err)
	}
	session.SetState(StateAwaitingRecognition)
	return nil
}

func (c *Controller) handleEmptyUtterance(ctx context.Context, session *Session) error {
	policy := c.profile.EmptyUtterancePolicy
	c.logger.Warn(observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: session.Connection},
		observability.Field{Key: "empty_utterance_policy", Value: policy},
	), "recognizer returned empty text")
	c.broadcast(ctx, session, "utterance_dropped", policy)

	prompt := ""
	if policy == "reprompt" {
		prompt = session.LastPrompt()
	}
	if err := c.speech.Prompt(ctx, session, prompt); err != nil {
		return fmt.Errorf("failed to restart recognition: %w", err)
	}
	return nil
}

// HandleRecognizeFailed retries after an initial-silence timeout while budget
// remains; otherwise the farewell is played and the call winds down. Other
// recognition failures skip the retry and wind down directly.
func (c *Controller) HandleRecognizeFailed(ctx context.Context, connectionID string, initialSilence bool) error {
	session, ok := c.session(ctx, connectionID, "RecognizeFailed")
	if !ok {
		return nil
	}

	if initialSilence {
		retried, err := c.speech.Retry(ctx, session, session.LastPrompt())
		if err != nil {
			return fmt.Errorf("failed to retry after silence: %w", err)
		}
		if retried {
			c.broadcast(ctx, session, "silence_retry", session.LastPrompt())
			return nil
		}
		return c.farewell(ctx, session, EndReasonSilenceExhausted)
	}

	return c.farewell(ctx, session, EndReasonRecognitionFailed)
}

func (c *Controller) farewell(ctx context.Context, session *Session, reason string) error {
	session.SetEndReason(reason)
	c.broadcast(ctx, session, "farewell", reason)

	err := c.calls.Play(ctx, session.Connection, c.profile.Farewell, callcontrol.PlayOptions{
		Voice:            c.profile.Voice,
		OperationContext: opContextFarewell,
	})
	if err != nil {
		// The goodbye could not be spoken; hang up rather than leave the
		// caller on a dead line.
		c.logger.Error(ctx, "failed to play farewell, hanging up", err)
		return c.calls.Hangup(ctx, session.Connection, true)
	}
	return nil
}

// HandlePlayCompleted hangs up once the farewell has been spoken. The hangup
// is issued even when no session is registered so a replayed event can never
// leave a call connected.
func (c *Controller) HandlePlayCompleted(ctx context.Context, connectionID, operationContext string) error {
	if operationContext != opContextFarewell {
		return nil
	}
	if err := c.calls.Hangup(ctx, connectionID, true); err != nil {
		return fmt.Errorf("failed to hang up after farewell: %w", err)
	}
	return nil
}

// HandlePlayFailed hangs up when the farewell playback failed, so the call
// does not linger with a caller hearing nothing.
func (c *Controller) HandlePlayFailed(ctx context.Context, connectionID, operationContext string) error {
	if operationContext != opContextFarewell {
		return nil
	}
	c.logger.Warn(observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: connectionID},
	), "farewell playback failed, hanging up")
	if err := c.calls.Hangup(ctx, connectionID, true); err != nil {
		return fmt.Errorf("failed to hang up after failed farewell: %w", err)
	}
	return nil
}

// HandleCallDisconnected finalizes the call: the session leaves the registry,
// the call row is closed, and the post-call pipeline runs in the background.
// A second disconnect for the same connection is a no-op.
func (c *Controller) HandleCallDisconnected(ctx context.Context, connectionID string) error {
	session, ok := c.registry.Remove(connectionID)
	if !ok {
		c.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "call_connection_id", Value: connectionID},
		), "disconnect for unknown connection, ignoring")
		return nil
	}

	session.SetState(StateTerminated)
	session.SetEndReason(EndReasonCallerHangup)
	reason := session.EndReason()

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_connection_id", Value: connectionID},
		observability.Field{Key: "call_id", Value: session.CallID.String()},
		observability.Field{Key: "end_reason", Value: reason},
	)

	if err := c.store.CompleteCall(ctx, session.CallID, reason); err != nil {
		c.logger.Error(ctx, "failed to close call record", err)
	}
	c.logger.Info(ctx, "call disconnected")
	c.broadcast(ctx, session, "terminated", reason)

	if c.postCall != nil {
		postCtx := observability.WithFields(context.Background(),
			observability.Field{Key: "call_id", Value: session.CallID.String()},
		)
		go func() {
			if err := c.postCall.CallEnded(postCtx, session.CallID); err != nil {
				c.logger.Error(postCtx, "post-call pipeline failed", err)
			}
		}()
	}
	return nil
}

func (c *Controller) session(ctx context.Context, connectionID, event string) (*Session, bool) {
	session, ok := c.registry.Get(connectionID)
	if !ok {
		c.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "call_connection_id", Value: connectionID},
			observability.Field{Key: "event", Value: event},
		), "event for unknown connection, ignoring")
	}
	return session, ok
}

func (c *Controller) broadcast(ctx context.Context, session *Session, state, detail string) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Broadcast(ctx, monitor.Event{
		CallID:       session.CallID.String(),
		ConnectionID: session.Connection,
		State:        state,
		Detail:       detail,
	})
}
