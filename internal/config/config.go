package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every runtime setting of the relay.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Room   RoomConfig
	Agent  AgentConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	room := loadRoomConfig()

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Room: room, Agent: agent}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3004"
	}

	if strings.Contains(port, ":") {
		// Accept ":3004" or "127.0.0.1:3004" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the dialogue model backend.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// Timeout bounds one model call; on expiry the turn processor falls
	// back to the apology reply instead of stalling the drain loop.
	Timeout time.Duration
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the concrete model client from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 8*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// RoomConfig describes the external room provider used to host calls.
type RoomConfig struct {
	APIKey  string
	BaseURL string
	Domain  string
	Enabled bool
}

func loadRoomConfig() RoomConfig {
	apiKey := strings.TrimSpace(os.Getenv("DAILY_API_KEY"))
	return RoomConfig{
		APIKey:  apiKey,
		BaseURL: getEnvOrDefault("DAILY_API_URL", "https://api.daily.co/v1"),
		Domain:  getEnvOrDefault("DAILY_DOMAIN", "shodhai.daily.co"),
		Enabled: apiKey != "",
	}
}

// AgentConfig tunes per-session audio segmentation and lifecycle policy.
// The defaults mirror the reference pipeline and were sized against the
// transcription simulator, not calibrated for real speech.
type AgentConfig struct {
	EnergyThreshold float64
	SilenceFrames   int
	// SilenceWindow finalizes a pending partial utterance when no new
	// activity arrives for this long.
	SilenceWindow time.Duration
	// IdleWindow is how long a session may sit with zero connections
	// before the reaper removes it.
	IdleWindow time.Duration
	// ReapInterval is how often the reaper scans for idle sessions.
	ReapInterval time.Duration
	// PingInterval drives the gateway heartbeat.
	PingInterval time.Duration
}

func loadAgentConfig() (AgentConfig, error) {
	energy, err := parseOptionalFloatEnv("AGENT_ENERGY_THRESHOLD")
	if err != nil {
		return AgentConfig{}, err
	}
	energyThreshold := 0.01
	if energy != nil {
		energyThreshold = *energy
	}

	silenceFrames := 10
	if frames, err := parseOptionalIntEnv("AGENT_SILENCE_FRAMES"); err != nil {
		return AgentConfig{}, err
	} else if frames != nil {
		silenceFrames = *frames
	}

	silenceWindow, err := parseDurationEnv("AGENT_SILENCE_WINDOW", 5*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	idleWindow, err := parseDurationEnv("AGENT_IDLE_WINDOW", 2*time.Minute)
	if err != nil {
		return AgentConfig{}, err
	}

	reapInterval, err := parseDurationEnv("AGENT_REAP_INTERVAL", 30*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	pingInterval, err := parseDurationEnv("AGENT_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		EnergyThreshold: energyThreshold,
		SilenceFrames:   silenceFrames,
		SilenceWindow:   silenceWindow,
		IdleWindow:      idleWindow,
		ReapInterval:    reapInterval,
		PingInterval:    pingInterval,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
