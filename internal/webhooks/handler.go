package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"voice-agent-server/internal/apierrors"
	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/webhooks/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CallController is the session controller surface the webhook layer drives.
type CallController interface {
	HandleIncomingCall(ctx context.Context, callerID, incomingCallContext, callbackURI string) error
	HandleCallConnected(ctx context.Context, connectionID string) error
	HandleRecognizeCompleted(ctx context.Context, connectionID, text string) error
	HandleRecognizeFailed(ctx context.Context, connectionID string, initialSilence bool) error
	HandlePlayCompleted(ctx context.Context, connectionID, operationContext string) error
	HandlePlayFailed(ctx context.Context, connectionID, operationContext string) error
	HandleCallDisconnected(ctx context.Context, connectionID string) error
}

// Handler terminates the two webhook surfaces: the inbound event grid
// endpoint (subscription validation, incoming calls) and the per-call
// callback endpoint the service posts lifecycle events to.
type Handler struct {
	controller      CallController
	tokens          *token.Issuer
	callbackBaseURL string
	logger          *observability.Logger
}

func New(controller CallController, tokens *token.Issuer, callbackBaseURL string, logger *observability.Logger) Handler {
	return Handler{
		controller:      controller,
		tokens:          tokens,
		callbackBaseURL: callbackBaseURL,
		logger:          logger,
	}
}

// inboundEvent is one event-grid delivery on the inbound endpoint.
type inboundEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// HandleInboundEvents handles POST /api/calls/events. Subscription-validation
// handshakes are echoed without touching any call state.
func (h *Handler) HandleInboundEvents(c *gin.Context) {
	ctx := c.Request.Context()

	var events []inboundEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	for _, event := range events {
		eventCtx := observability.WithFields(ctx,
			observability.Field{Key: "event_id", Value: event.ID},
			observability.Field{Key: "event_type", Value: event.EventType},
		)

		switch event.EventType {
		case callcontrol.EventSubscriptionValidation:
			var data callcontrol.SubscriptionValidationData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				apierrors.BadRequest(c, "INVALID_PAYLOAD", "malformed subscription validation event")
				return
			}
			h.logger.Info(eventCtx, "answering subscription validation handshake")
			c.JSON(http.StatusOK, gin.H{"validationResponse": data.ValidationCode})
			return

		case callcontrol.EventIncomingCall:
			var data callcontrol.IncomingCallData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				h.logger.Error(eventCtx, "malformed incoming call event", err)
				continue
			}
			if err := h.acceptIncomingCall(eventCtx, data); err != nil {
				h.logger.Error(eventCtx, "failed to accept incoming call", err)
			}

		default:
			h.logger.Info(eventCtx, "ignoring unhandled inbound event")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *Handler) acceptIncomingCall(ctx context.Context, data callcontrol.IncomingCallData) error {
	callerID := data.From.RawID
	ctx = observability.WithFields(ctx, observability.Field{Key: "caller_id", Value: callerID})

	signed, err := h.tokens.Issue(ctx, uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to issue callback token: %w", err)
	}

	callbackURI := fmt.Sprintf("%s/api/calls/callbacks/%s?callerId=%s",
		h.callbackBaseURL, signed, url.QueryEscape(callerID))
	return h.controller.HandleIncomingCall(ctx, callerID, data.IncomingCallContext, callbackURI)
}

// HandleCallbacks handles POST /api/calls/callbacks/:contextId. The path
// parameter is the signed token issued when the call was accepted; deliveries
// without a valid one are rejected.
func (h *Handler) HandleCallbacks(c *gin.Context) {
	ctx := c.Request.Context()

	if _, err := h.tokens.Verify(ctx, c.Param("contextId")); err != nil {
		apierrors.Unauthorized(c, "invalid callback token")
		return
	}

	if callerID := c.Query("callerId"); callerID != "" {
		ctx = observability.WithFields(ctx, observability.Field{Key: "caller_id", Value: callerID})
	}

	var events []callcontrol.CallbackEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	for _, event := range events {
		eventCtx := observability.WithFields(ctx,
			observability.Field{Key: "event_id", Value: event.ID},
			observability.Field{Key: "event_type", Value: event.Type},
			observability.Field{Key: "call_connection_id", Value: event.Data.CallConnectionID},
		)
		if err := h.dispatch(eventCtx, event); err != nil {
			// Callback deliveries are not retried on our account; log and
			// keep processing the batch.
			h.logger.Error(eventCtx, "failed to process callback event", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *Handler) dispatch(ctx context.Context, event callcontrol.CallbackEvent) error {
	connectionID := event.Data.CallConnectionID

	switch event.Type {
	case callcontrol.EventCallConnected:
		return h.controller.HandleCallConnected(ctx, connectionID)
	case callcontrol.EventRecognizeCompleted:
		return h.controller.HandleRecognizeCompleted(ctx, connectionID, event.RecognizedText())
	case callcontrol.EventRecognizeFailed:
		return h.controller.HandleRecognizeFailed(ctx, connectionID, event.IsInitialSilenceTimeout())
	case callcontrol.EventPlayCompleted:
		return h.controller.HandlePlayCompleted(ctx, connectionID, event.Data.OperationContext)
	case callcontrol.EventPlayFailed:
		return h.controller.HandlePlayFailed(ctx, connectionID, event.Data.OperationContext)
	case callcontrol.EventCallDisconnected:
		return h.controller.HandleCallDisconnected(ctx, connectionID)
	default:
		h.logger.Info(ctx, "ignoring unhandled callback event")
		return nil
	}
}
