package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig
	CallControl CallControlConfig
	OpenAI      OpenAIConfig
	GoogleAI    GoogleAIConfig
	Search      SearchConfig
	Agent       AgentProfile
	Redis       RedisConfig
	Kafka       KafkaConfig
	Mail        MailConfig
	SMS         SMSConfig
	Server      ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// CallControlConfig holds the telephony call-control service settings.
type CallControlConfig struct {
	Endpoint                  string
	AccessKey                 string
	CognitiveServicesEndpoint string
	CallbackBaseURL           string
	CallbackTokenSecret       string
}

// OpenAIConfig holds the chat-completion model settings.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// GoogleAIConfig holds the Gemini settings used for post-call summaries.
// Summaries are disabled when the API key is empty.
type GoogleAIConfig struct {
	APIKey string
	Model  string
}

// SearchConfig holds the document-search collaborator settings.
// The search tool is not registered when the endpoint is empty.
type SearchConfig struct {
	Endpoint string
	APIKey   string
}

// AgentProfile parameterizes one dialogue flavor: prompts, voice, tool-loop
// limits and retry policy. One controller serves any profile.
type AgentProfile struct {
	SystemPrompt         string
	UserPromptTemplate   string
	Greeting             string
	Farewell             string
	Apology              string
	Voice                string
	Language             string
	MaxTokens            int64
	RetryBudget          int
	ToolRoundLimit       int
	EmptyUtterancePolicy string // "drop" or "reprompt"
}

// RedisConfig holds Redis settings for webhook rate limiting
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// KafkaConfig holds the completed-call event stream settings.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// MailConfig holds call-summary email settings.
// Email delivery is disabled when the API key or recipient is empty.
type MailConfig struct {
	ResendAPIKey     string
	Sender           string
	SummaryRecipient string
}

// SMSConfig holds post-call SMS follow-up settings.
// SMS delivery is disabled when the account SID is empty.
type SMSConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	FollowUpBody string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port             int
	WebhookRateLimit int
}

const defaultSystemPrompt = "あなたは電話応対のアシスタントです。" +
	"Answer in 200 characters or less. Reply in the caller's language. " +
	"Never include raw URLs in your answer. Use the provided tools when the " +
	"caller asks about documents or the weather."

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Call-control configuration
	if cfg.CallControl.Endpoint, err = requireEnv("CALLCONTROL_ENDPOINT"); err != nil {
		return nil, err
	}
	if cfg.CallControl.AccessKey, err = requireEnv("CALLCONTROL_ACCESS_KEY"); err != nil {
		return nil, err
	}
	if cfg.CallControl.CognitiveServicesEndpoint, err = requireEnv("COGNITIVE_SERVICES_ENDPOINT"); err != nil {
		return nil, err
	}
	if cfg.CallControl.CallbackBaseURL, err = requireEnv("CALLBACK_BASE_URL"); err != nil {
		return nil, err
	}
	if cfg.CallControl.CallbackTokenSecret, err = requireEnv("CALLBACK_TOKEN_SECRET"); err != nil {
		return nil, err
	}

	// Model configuration
	if cfg.OpenAI.APIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	cfg.OpenAI.Model = getEnvWithDefault("OPENAI_MODEL", "gpt-4o")

	cfg.GoogleAI.APIKey = os.Getenv("GOOGLE_AI_API_KEY")
	cfg.GoogleAI.Model = getEnvWithDefault("GOOGLE_AI_MODEL", "gemini-1.5-flash")

	// Search collaborator
	cfg.Search.Endpoint = os.Getenv("SEARCH_ENDPOINT")
	cfg.Search.APIKey = os.Getenv("SEARCH_API_KEY")

	// Agent profile
	cfg.Agent, err = loadAgentProfile()
	if err != nil {
		return nil, err
	}

	// Redis configuration
	cfg.Redis.Enabled = os.Getenv("REDIS_HOST") != ""
	if cfg.Redis.Enabled {
		cfg.Redis.Host = os.Getenv("REDIS_HOST")
		redisPort := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		redisDB := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Kafka configuration
	cfg.Kafka.Brokers = os.Getenv("KAFKA_BROKERS")
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", "call-events")

	// Notification configuration
	cfg.Mail.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Mail.Sender = os.Getenv("DEFAULT_EMAIL_SENDER_ADDRESS")
	cfg.Mail.SummaryRecipient = os.Getenv("CALL_SUMMARY_RECIPIENT")

	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.SMS.FollowUpBody = os.Getenv("TWILIO_FOLLOWUP_BODY")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	webhookRateLimit := getEnvWithDefault("WEBHOOK_RATE_LIMIT", "300")
	cfg.Server.WebhookRateLimit, err = strconv.Atoi(webhookRateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WEBHOOK_RATE_LIMIT: %w", err)
	}

	return cfg, nil
}

func loadAgentProfile() (AgentProfile, error) {
	profile := AgentProfile{
		SystemPrompt:         getEnvWithDefault("AGENT_SYSTEM_PROMPT", defaultSystemPrompt),
		UserPromptTemplate:   getEnvWithDefault("AGENT_USER_PROMPT_TEMPLATE", "{utterance}"),
		Greeting:             getEnvWithDefault("AGENT_GREETING", "こんにちは。ご用件をお話しください。"),
		Farewell:             getEnvWithDefault("AGENT_FAREWELL", "お電話ありがとうございました。失礼いたします。"),
		Apology:              getEnvWithDefault("AGENT_APOLOGY", "申し訳ありません、うまくお答えできませんでした。"),
		Voice:                getEnvWithDefault("AGENT_VOICE", "ja-JP-NanamiNeural"),
		Language:             getEnvWithDefault("AGENT_LANGUAGE", "ja-JP"),
		EmptyUtterancePolicy: getEnvWithDefault("AGENT_EMPTY_UTTERANCE_POLICY", "drop"),
	}

	maxTokens := getEnvWithDefault("AGENT_MAX_TOKENS", "200")
	parsedTokens, err := strconv.ParseInt(maxTokens, 10, 64)
	if err != nil {
		return AgentProfile{}, fmt.Errorf("failed to parse AGENT_MAX_TOKENS: %w", err)
	}
	profile.MaxTokens = parsedTokens

	retryBudget := getEnvWithDefault("AGENT_SILENCE_RETRIES", "2")
	profile.RetryBudget, err = strconv.Atoi(retryBudget)
	if err != nil {
		return AgentProfile{}, fmt.Errorf("failed to parse AGENT_SILENCE_RETRIES: %w", err)
	}

	roundLimit := getEnvWithDefault("AGENT_TOOL_ROUND_LIMIT", "5")
	profile.ToolRoundLimit, err = strconv.Atoi(roundLimit)
	if err != nil {
		return AgentProfile{}, fmt.Errorf("failed to parse AGENT_TOOL_ROUND_LIMIT: %w", err)
	}

	if profile.EmptyUtterancePolicy != "drop" && profile.EmptyUtterancePolicy != "reprompt" {
		return AgentProfile{}, fmt.Errorf("invalid AGENT_EMPTY_UTTERANCE_POLICY %q", profile.EmptyUtterancePolicy)
	}

	return profile, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
