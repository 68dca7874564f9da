package handler

import (
	"context"
	"errors"
	"net/http"

	"voice-agent-server/internal/apierrors"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CallStore defines the read operations the handler needs.
type CallStore interface {
	GetCall(ctx context.Context, id uuid.UUID) (*store.Call, error)
	GetCallTurns(ctx context.Context, callID uuid.UUID) ([]store.CallTurn, error)
}

type Handler struct {
	store  CallStore
	logger *observability.Logger
}

func New(callStore CallStore, logger *observability.Logger) Handler {
	return Handler{store: callStore, logger: logger}
}

// TranscriptTurn is one line of the transcript as returned to API clients.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	SaidAt  string `json:"said_at"`
}

// TranscriptResponse is the JSON body of GET /api/calls/:id/transcript.
type TranscriptResponse struct {
	CallID    string           `json:"call_id"`
	CallerID  string           `json:"caller_id"`
	Status    string           `json:"status"`
	EndReason string           `json:"end_reason,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	StartedAt string           `json:"started_at"`
	EndedAt   string           `json:"ended_at,omitempty"`
	Turns     []TranscriptTurn `json:"turns"`
}

// HandleGetTranscript handles GET /api/calls/:id/transcript
func (h *Handler) HandleGetTranscript(c *gin.Context) {
	ctx := c.Request.Context()

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CALL_ID", "call ID must be a UUID")
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	call, err := h.store.GetCall(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(c, "call not found")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	turns, err := h.store.GetCallTurns(ctx, callID)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	response := TranscriptResponse{
		CallID:    call.ID.String(),
		CallerID:  call.CallerID,
		Status:    call.Status,
		EndReason: call.EndReason.String,
		Summary:   call.Summary.String,
		StartedAt: call.StartedAt,
		EndedAt:   call.EndedAt.String,
		Turns:     make([]TranscriptTurn, 0, len(turns)),
	}
	for _, turn := range turns {
		response.Turns = append(response.Turns, TranscriptTurn{
			Role:    turn.Role,
			Content: turn.Content,
			SaidAt:  turn.SaidAt,
		})
	}

	c.JSON(http.StatusOK, response)
}
