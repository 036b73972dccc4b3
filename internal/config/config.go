package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AgentConfig holds the consultation voice agent configuration.
type AgentConfig struct {
	Port   string
	LogEnv string

	// Voice model configuration (required)
	GoogleAPIKey string

	// Document store configuration (required)
	MongoURI      string
	MongoDatabase string

	// LiveKit control plane (optional - absence disables room teardown operations)
	LiveKitServerURL string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Twilio control plane (optional - absence disables provider-level call teardown)
	TwilioAccountSID string
	TwilioAuthToken  string

	// Redis session registry (optional)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Call lifecycle timing
	TerminationGraceDelay time.Duration
	FarewellTimeout       time.Duration
	FarewellHoldoff       time.Duration
	IdentitySettleDelay   time.Duration
	TeardownStageTimeout  time.Duration
}

// LoadFromEnv loads agent configuration from environment variables.
// Note: .env file is loaded in main for local development using godotenv.Load().
func LoadFromEnv() *AgentConfig {
	return &AgentConfig{
		Port:   getEnvOrDefault("HTTP_PORT", "8082"),
		LogEnv: getEnvOrDefault("LOG_ENV", "development"),

		GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),

		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "upclosets"),

		LiveKitServerURL: os.Getenv("LIVEKIT_SERVER_URL"),
		LiveKitAPIKey:    os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: os.Getenv("LIVEKIT_API_SECRET"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),

		TerminationGraceDelay: getEnvAsDurationOrDefault("TERMINATION_GRACE_DELAY", 5*time.Second),
		FarewellTimeout:       getEnvAsDurationOrDefault("FAREWELL_TIMEOUT", 4*time.Second),
		FarewellHoldoff:       getEnvAsDurationOrDefault("FAREWELL_HOLDOFF", 6*time.Second),
		IdentitySettleDelay:   getEnvAsDurationOrDefault("IDENTITY_SETTLE_DELAY", 2*time.Second),
		TeardownStageTimeout:  getEnvAsDurationOrDefault("TEARDOWN_STAGE_TIMEOUT", 5*time.Second),
	}
}

// Validate checks the required configuration. A missing required credential is
// a startup-fatal error: the process must not begin accepting calls without it.
func (c *AgentConfig) Validate() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	return nil
}

// RedisEnabled reports whether the session registry is configured.
func (c *AgentConfig) RedisEnabled() bool {
	return c.RedisHost != ""
}

// LiveKitEnabled reports whether room control-plane operations are configured.
func (c *AgentConfig) LiveKitEnabled() bool {
	return c.LiveKitServerURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault gets environment variable as duration or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
