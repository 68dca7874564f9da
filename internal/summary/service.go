package summary

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"voice-agent-server/internal/clients/kafka"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/store"

	"github.com/google/uuid"
)

// CallStore is the persistence surface the service reads and writes.
type CallStore interface {
	GetCall(ctx context.Context, id uuid.UUID) (*store.Call, error)
	GetCallTurns(ctx context.Context, callID uuid.UUID) ([]store.CallTurn, error)
	SetCallSummary(ctx context.Context, callID uuid.UUID, summary string) error
}

// Summarizer condenses a transcript into a few sentences.
type Summarizer interface {
	SummarizeTranscript(ctx context.Context, lines []string) (string, error)
}

// EmailSender delivers the summary email.
type EmailSender interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

// SMSSender delivers the follow-up SMS to the caller.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EventPublisher emits completed-call events downstream.
type EventPublisher interface {
	PublishCallEvent(ctx context.Context, event kafka.CallEvent) error
}

// NotificationConfig holds the delivery targets for post-call notifications.
type NotificationConfig struct {
	EmailSender    string
	EmailRecipient string
	SMSBody        string
}

// Service runs the post-call pipeline: summarize the transcript, persist the
// summary, then fan out notifications. Every stage past persistence is
// best-effort; one failing delivery never blocks the others.
type Service struct {
	store      CallStore
	summarizer Summarizer
	email      EmailSender
	sms        SMSSender
	publisher  EventPublisher
	cfg        NotificationConfig
	logger     *observability.Logger
}

func NewService(callStore CallStore, summarizer Summarizer, email EmailSender, sms SMSSender,
	publisher EventPublisher, cfg NotificationConfig, logger *observability.Logger) *Service {
	return &Service{
		store:      callStore,
		summarizer: summarizer,
		email:      email,
		sms:        sms,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// CallEnded processes one completed call. Summarization requires a Gemini
// client and a non-empty transcript; without either the pipeline still
// publishes the completed-call event.
func (s *Service) CallEnded(ctx context.Context, callID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load call: %w", err)
	}

	turns, err := s.store.GetCallTurns(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load call turns: %w", err)
	}

	summaryText := s.summarize(ctx, callID, turns)
	s.notify(ctx, call, summaryText)
	s.publish(ctx, call, summaryText, len(turns))
	return nil
}

func (s *Service) summarize(ctx context.Context, callID uuid.UUID, turns []store.CallTurn) string {
	if s.summarizer == nil || len(turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}

	summaryText, err := s.summarizer.SummarizeTranscript(ctx, lines)
	if err != nil {
		s.logger.Error(ctx, "failed to summarize call transcript", err)
		return ""
	}

	if err := s.store.SetCallSummary(ctx, callID, summaryText); err != nil {
		s.logger.Error(ctx, "failed to persist call summary", err)
	}
	return summaryText
}

func (s *Service) notify(ctx context.Context, call *store.Call, summaryText string) {
	if s.email != nil && s.cfg.EmailRecipient != "" && summaryText != "" {
		subject := fmt.Sprintf("Call summary: %s", call.CallerID)
		body := fmt.Sprintf("<p>Caller: %s</p><p>%s</p>",
			html.EscapeString(call.CallerID), html.EscapeString(summaryText))
		if _, err := s.email.SendEmail(ctx, s.cfg.EmailSender, s.cfg.EmailRecipient, subject, body); err != nil {
			s.logger.Error(ctx, "failed to send summary email", err)
		}
	}

	if s.sms != nil && s.cfg.SMSBody != "" {
		to := strings.TrimPrefix(call.CallerID, "4:")
		if err := s.sms.SendSMS(ctx, to, s.cfg.SMSBody); err != nil {
			s.logger.Error(ctx, "failed to send follow-up SMS", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, call *store.Call, summaryText string, turnCount int) {
	if s.publisher == nil {
		return
	}

	event := kafka.CallEvent{
		ID:       uuid.New().String(),
		Type:     "call.completed",
		CallID:   call.ID.String(),
		CallerID: call.CallerID,
		Data: map[string]any{
			"turn_count": turnCount,
			"end_reason": call.EndReason.String,
		},
		Timestamp: time.Now().UTC(),
	}
	if summaryText != "" {
		event.Data["summary"] = summaryText
	}

	if err := s.publisher.PublishCallEvent(ctx, event); err != nil {
		s.logger.Error(ctx, "failed to publish completed-call event", err)
	}
}
