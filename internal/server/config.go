// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the chat relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort              = ":4000"
	defaultMaxMessageSize    = 1 << 20
	defaultRateLimitBurst    = 10
	defaultHeartbeatInterval = 30 * time.Second
	defaultSendBufferSize    = 256
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
)

// DefaultRooms is the room whitelist used when none is configured.
var DefaultRooms = []string{"general", "random", "tech"}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port           string
	AllowedOrigins []string
	// MaxMessageSize caps a single inbound frame, in bytes. A frame over the
	// cap closes the connection, so it sits well above any frame a
	// 1000-character chat text needs; text length is enforced by truncation.
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	Rooms          []string
	// HeartbeatInterval is the liveness sweep period. A connection that
	// misses one full ping cycle is terminated.
	HeartbeatInterval time.Duration
	// SendBufferSize is the number of outbound frames queued per connection
	// before deliveries to it start failing.
	SendBufferSize int
	LogLevel       string
	LogFormat      string
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:4000",
			"http://localhost:5173",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateLimitBurst,
			RefillInterval: time.Second,
		},
		Rooms:             append([]string(nil), DefaultRooms...),
		HeartbeatInterval: defaultHeartbeatInterval,
		SendBufferSize:    defaultSendBufferSize,
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitize returns a copy of cfg with every unset or invalid field replaced
// by its default.
func (cfg Config) Sanitize() Config {
	out := cfg
	out.Port = normalizePort(cfg.Port)
	out.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	out.Rooms = append([]string(nil), cfg.Rooms...)

	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = defaultMaxMessageSize
	}
	if out.RateLimit.Burst <= 0 {
		out.RateLimit.Burst = defaultRateLimitBurst
	}
	if out.RateLimit.RefillInterval <= 0 {
		out.RateLimit.RefillInterval = time.Second
	}
	if len(trimAll(out.Rooms)) == 0 {
		out.Rooms = append([]string(nil), DefaultRooms...)
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = defaultHeartbeatInterval
	}
	if out.SendBufferSize <= 0 {
		out.SendBufferSize = defaultSendBufferSize
	}
	if out.LogLevel == "" {
		out.LogLevel = defaultLogLevel
	}
	if out.LogFormat == "" {
		out.LogFormat = defaultLogFormat
	}
	return out
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if rooms := os.Getenv("CHAT_ROOMS"); rooms != "" {
		cfg.Rooms = parseList(rooms)
	}

	if interval := os.Getenv("HEARTBEAT_INTERVAL"); interval != "" {
		cfg.HeartbeatInterval = parseDuration(interval, cfg.HeartbeatInterval)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	return &cfg
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts a Go duration ("30s", "1m") or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
