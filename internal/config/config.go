// Package config loads runtime configuration from environment variables.
// Every knob has a default that works for a single-machine setup; a .env
// file is honored when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/DevSkits916/postdeck/internal/logger"
)

// Config holds everything both daemons read at startup.
type Config struct {
	// RedisURL is the address of the Redis instance backing the pub/sub
	// and mailbox channels. Empty disables the Redis legs.
	RedisURL string

	// ChannelName namespaces every Redis key and topic the bridge uses.
	ChannelName string

	// StatePath is where the control daemon persists its state document.
	StatePath string

	// TickInterval is the scheduler's evaluation period.
	TickInterval time.Duration

	// MailboxPoll is how often the bridge drains its mailbox key.
	MailboxPoll time.Duration

	// AgentListenAddr, when set, makes the agent accept direct WebSocket
	// connections. PeerURL points the control daemon at it.
	AgentListenAddr string
	PeerURL         string

	// Origin is presented on outbound direct connections; AllowedOrigin
	// filters inbound ones ("*" accepts any).
	Origin        string
	AllowedOrigin string

	// StepRetryLimit and StepBaseDelay shape the agent's per-step retry
	// behavior.
	StepRetryLimit int
	StepBaseDelay  time.Duration

	// ThinkMin and ThinkMax bound the humanized pause between posting
	// steps.
	ThinkMin time.Duration
	ThinkMax time.Duration

	// SimilarityThreshold is the near-duplicate rejection cutoff.
	SimilarityThreshold float64

	// Debug turns on verbose bridge tracing.
	Debug bool

	// Logging configures both log tiers.
	Logging *logger.Config
}

// Load reads the configuration from the environment.
func Load() *Config {
	logging := logger.DefaultConfig()
	logging.Level = logger.Level(getEnv("LOG_LEVEL", string(logging.Level)))
	logging.Format = logger.Format(getEnv("LOG_FORMAT", string(logging.Format)))
	logging.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", logging.File.Enabled)
	logging.File.Path = getEnv("LOG_FILE_PATH", logging.File.Path)
	logging.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", logging.File.MaxSizeMB)
	logging.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", logging.File.MaxBackups)
	logging.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", logging.File.MaxAgeDays)

	return &Config{
		RedisURL:            getEnv("REDIS_URL", "localhost:6379"),
		ChannelName:         getEnv("CHANNEL_NAME", "postdeck"),
		StatePath:           getEnv("STATE_PATH", "postdeck-state.json"),
		TickInterval:        getEnvAsDuration("TICK_INTERVAL", 10*time.Second),
		MailboxPoll:         getEnvAsDuration("MAILBOX_POLL", 500*time.Millisecond),
		AgentListenAddr:     getEnv("AGENT_LISTEN_ADDR", ""),
		PeerURL:             getEnv("PEER_URL", ""),
		Origin:              getEnv("ORIGIN", "http://localhost"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "*"),
		StepRetryLimit:      getEnvAsInt("STEP_RETRY_LIMIT", 3),
		StepBaseDelay:       getEnvAsDuration("STEP_BASE_DELAY", time.Second),
		ThinkMin:            getEnvAsDuration("THINK_MIN", 500*time.Millisecond),
		ThinkMax:            getEnvAsDuration("THINK_MAX", 3*time.Second),
		SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.8),
		Debug:               getEnvAsBool("DEBUG", false),
		Logging:             logging,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
