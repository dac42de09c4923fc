package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/relay"
	"github.com/tutoria/tutor-relay/internal/sse"
)

type Config struct {
	ListenAddr string

	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiModel      string
	GeminiAPIKey     string
	GeminiProxyURL   string

	DefaultSystemPrompt string
	Temperature         float64
	TopP                float64
	TopK                float64
	MaxTokens           int

	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	PartialJSON       sse.PartialPolicy

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel slog.Level

	// A2A
	A2AEnabled bool
	A2APort    int
	AgentName  string
	AgentDesc  string
}

// dotenvFiles are tried in order; the first one found is loaded.
var dotenvFiles = []string{".env.local", ".env"}

// LoadDotenv loads the first dotenv file that exists. Variables already set
// in the environment win. It returns the file loaded, or "".
func LoadDotenv() (string, error) {
	for _, name := range dotenvFiles {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return name, fmt.Errorf("load %s: %w", name, err)
		}
		return name, nil
	}
	return "", nil
}

// Load reads dotenv files, the environment and the command line.
func Load() *Config {
	if name, err := LoadDotenv(); err != nil {
		slog.Warn("ignoring dotenv file", "file", name, "error", err)
	}
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse registers the configuration flags on fset, with defaults taken from
// the environment, and parses args.
func Parse(fset *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	var partial, logLevel string

	fset.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "Relay listen address")

	fset.StringVar(&cfg.GeminiBaseURL, "gemini-base-url", getEnv("GEMINI_BASE_URL", gemini.DefaultBaseURL), "Generation API base URL")
	fset.StringVar(&cfg.GeminiAPIVersion, "gemini-api-version", getEnv("GEMINI_API_VERSION", gemini.DefaultAPIVersion), "Generation API version path segment")
	fset.StringVar(&cfg.GeminiModel, "gemini-model", getEnv("GEMINI_MODEL", gemini.DefaultModel), "Model identifier")
	fset.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", getEnv("GEMINI_API_KEY", ""), "Generation API key")
	fset.StringVar(&cfg.GeminiProxyURL, "gemini-proxy-url", getEnv("GEMINI_PROXY_URL", ""), "HTTP/HTTPS proxy URL for upstream requests (e.g. http://proxy:8080)")

	fset.StringVar(&cfg.DefaultSystemPrompt, "default-system-prompt", getEnv("DEFAULT_SYSTEM_PROMPT", relay.DefaultSystemPrompt), "System prompt used when a request has none")
	fset.Float64Var(&cfg.Temperature, "temperature", getEnvFloat("GEN_TEMPERATURE", 0.55), "Sampling temperature")
	fset.Float64Var(&cfg.TopP, "top-p", getEnvFloat("GEN_TOP_P", 0.9), "Nucleus sampling threshold")
	fset.Float64Var(&cfg.TopK, "top-k", getEnvFloat("GEN_TOP_K", 40), "Top-k sampling")
	fset.IntVar(&cfg.MaxTokens, "max-tokens", getEnvInt("GEN_MAX_TOKENS", 2048), "Maximum output tokens")

	fset.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", getEnvDuration("HEARTBEAT_INTERVAL", 15*time.Second), "Interval between keep-alive comments; 0 disables them")
	fset.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 300*time.Second), "Upstream round-trip timeout")
	fset.StringVar(&partial, "partial-json", getEnv("PARTIAL_JSON_POLICY", sse.PartialDrop.String()), "Incomplete JSON payload policy: drop or merge")

	fset.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", getEnvFloat("RATE_LIMIT_RPS", 2), "Requests per second allowed per client IP; 0 disables limiting")
	fset.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", getEnvInt("RATE_LIMIT_BURST", 5), "Burst size per client IP")

	fset.StringVar(&logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn or error")

	fset.BoolVar(&cfg.A2AEnabled, "a2a", getEnvBool("A2A_ENABLED", false), "Enable A2A server alongside the relay")
	fset.IntVar(&cfg.A2APort, "a2a-port", getEnvInt("A2A_PORT", 8000), "A2A server listen port")
	fset.StringVar(&cfg.AgentName, "agent-name", getEnv("AGENT_NAME", "tutor-relay"), "A2A AgentCard name")
	fset.StringVar(&cfg.AgentDesc, "agent-desc", getEnv("AGENT_DESC", "Study tutor exposed via A2A protocol"), "A2A AgentCard description")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.PartialJSON, err = sse.ParsePartialPolicy(partial); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return cfg, nil
}

// GeminiConfig returns the upstream client settings.
func (c *Config) GeminiConfig() gemini.Config {
	return gemini.Config{
		BaseURL:    c.GeminiBaseURL,
		APIVersion: c.GeminiAPIVersion,
		Model:      c.GeminiModel,
		APIKey:     c.GeminiAPIKey,
		ProxyURL:   c.GeminiProxyURL,
	}
}

// RelayOptions returns the immutable relay settings.
func (c *Config) RelayOptions() relay.Options {
	return relay.Options{
		DefaultSystemPrompt: c.DefaultSystemPrompt,
		Temperature:         float32(c.Temperature),
		TopP:                float32(c.TopP),
		TopK:                float32(c.TopK),
		MaxOutputTokens:     int32(c.MaxTokens),
		HeartbeatInterval:   c.HeartbeatInterval,
		RequestTimeout:      c.RequestTimeout,
		PartialPolicy:       c.PartialJSON,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
