package callsession

import (
	"context"

	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/monitor"
	"voice-agent-server/internal/recognition"
	"voice-agent-server/internal/store"

	"github.com/google/uuid"
)

// CallControl defines the telephony operations required by the Controller.
type CallControl interface {
	Answer(ctx context.Context, incomingCallContext, callbackURI string) (string, error)
	Play(ctx context.Context, callConnectionID, text string, opts callcontrol.PlayOptions) error
	Hangup(ctx context.Context, callConnectionID string, forEveryone bool) error
}

// SpeechCapture defines the recognition operations required by the Controller.
type SpeechCapture interface {
	Prompt(ctx context.Context, call recognition.Call, prompt string) error
	Retry(ctx context.Context, call recognition.Call, prompt string) (bool, error)
}

// Responder resolves one caller utterance to one reply.
type Responder interface {
	Respond(ctx context.Context, utterance string) (string, error)
}

// CallStore defines the persistence operations required by the Controller.
type CallStore interface {
	CreateCall(ctx context.Context, connectionID, callerID string) (*store.Call, error)
	AddCallTurn(ctx context.Context, callID uuid.UUID, role, content string) (*store.CallTurn, error)
	CompleteCall(ctx context.Context, callID uuid.UUID, endReason string) error
}

// PostCallHandler runs the post-call pipeline after a call disconnects.
type PostCallHandler interface {
	CallEnded(ctx context.Context, callID uuid.UUID) error
}

// Broadcaster pushes call lifecycle events to monitoring clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, event monitor.Event)
}
