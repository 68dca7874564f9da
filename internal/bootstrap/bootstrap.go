package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"voice-agent-server/internal/callsession"
	sessionHandler "voice-agent-server/internal/callsession/handler"
	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/clients/googleai"
	kafkaClient "voice-agent-server/internal/clients/kafka"
	"voice-agent-server/internal/clients/mail"
	openaiClient "voice-agent-server/internal/clients/openai"
	redisClient "voice-agent-server/internal/clients/redis"
	"voice-agent-server/internal/clients/search"
	"voice-agent-server/internal/clients/sms"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/dialogue"
	"voice-agent-server/internal/monitor"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/ratelimit"
	"voice-agent-server/internal/recognition"
	"voice-agent-server/internal/store"
	"voice-agent-server/internal/summary"
	"voice-agent-server/internal/tools"
	"voice-agent-server/internal/webhooks"
	"voice-agent-server/internal/webhooks/token"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Handlers
	WebhookHandler webhooks.Handler
	SessionHandler sessionHandler.Handler
	MonitorHub     *monitor.Hub
	RateLimiter    *ratelimit.Service

	// Call orchestration
	Controller *callsession.Controller

	// Clients that need cleanup
	KafkaProducer *kafkaClient.Producer
	Redis         *redisClient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Telephony call control
	callControl, err := callcontrol.New(callcontrol.Config{
		Endpoint:                  cfg.CallControl.Endpoint,
		AccessKey:                 cfg.CallControl.AccessKey,
		CognitiveServicesEndpoint: cfg.CallControl.CognitiveServicesEndpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create call-control client: %w", err)
	}

	// Speech recognition
	recognitionManager := recognition.New(callControl, recognition.Config{
		Voice:    cfg.Agent.Voice,
		Language: cfg.Agent.Language,
	}, logger)

	// Tool registry
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewWeatherTool()); err != nil {
		return nil, fmt.Errorf("failed to register weather tool: %w", err)
	}
	if cfg.Search.Endpoint != "" {
		searchClient, err := search.New(cfg.Search.Endpoint, cfg.Search.APIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create search client: %w", err)
		}
		if err := registry.Register(tools.NewDocumentSearchTool(searchClient)); err != nil {
			return nil, fmt.Errorf("failed to register document search tool: %w", err)
		}
	}

	// Dialogue model
	chatService, err := openaiClient.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	dialogueClient := dialogue.New(chatService, registry, dialogue.Options{
		SystemPrompt:       cfg.Agent.SystemPrompt,
		UserPromptTemplate: cfg.Agent.UserPromptTemplate,
		MaxTokens:          cfg.Agent.MaxTokens,
		ToolRoundLimit:     cfg.Agent.ToolRoundLimit,
		Apology:            cfg.Agent.Apology,
	}, logger)

	// Optional post-call collaborators
	var summarizer summary.Summarizer
	if cfg.GoogleAI.APIKey != "" {
		geminiClient, err := googleai.New(cfg.GoogleAI.APIKey, cfg.GoogleAI.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		summarizer = geminiClient
	}

	var emailSender summary.EmailSender
	if cfg.Mail.ResendAPIKey != "" {
		mailClient, err := mail.NewResendClient(cfg.Mail.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create resend client: %w", err)
		}
		emailSender = mailClient
	}

	var smsSender summary.SMSSender
	if cfg.SMS.AccountSID != "" {
		smsClient, err := sms.New(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMS client: %w", err)
		}
		smsSender = smsClient
	}

	var publisher summary.EventPublisher
	if cfg.Kafka.Brokers != "" {
		deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
			Brokers: strings.Split(cfg.Kafka.Brokers, ","),
			Topic:   cfg.Kafka.Topic,
		}, logger)
		publisher = deps.KafkaProducer
	}

	summaryService := summary.NewService(&deps.Store, summarizer, emailSender, smsSender, publisher,
		summary.NotificationConfig{
			EmailSender:    cfg.Mail.Sender,
			EmailRecipient: cfg.Mail.SummaryRecipient,
			SMSBody:        cfg.SMS.FollowUpBody,
		}, logger)

	// Redis-backed webhook rate limiting; runs wide open without Redis.
	deps.Redis, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	deps.RateLimiter = ratelimit.NewService(deps.Redis, cfg.Server.WebhookRateLimit, logger)

	// Live-call monitoring
	deps.MonitorHub = monitor.NewHub(logger)

	// Call session controller
	deps.Controller = callsession.NewController(callControl, recognitionManager, dialogueClient,
		&deps.Store, summaryService, deps.MonitorHub, callsession.NewRegistry(), cfg.Agent, logger)

	// Webhook surface
	tokenIssuer, err := token.NewIssuer(cfg.CallControl.CallbackTokenSecret, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback token issuer: %w", err)
	}
	deps.WebhookHandler = webhooks.New(deps.Controller, tokenIssuer, cfg.CallControl.CallbackBaseURL, logger)
	deps.SessionHandler = sessionHandler.New(&deps.Store, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.KafkaProducer != nil {
		d.KafkaProducer.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}
