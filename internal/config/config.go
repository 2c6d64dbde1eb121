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

// Config aggregates every setting the backend needs.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  SpeechConfig
	Storage StorageConfig
	Session SessionConfig
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

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Speech:  speech,
		Storage: loadStorageConfig(),
		Session: session,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the Ark chat model used for completion and for the
// LLM sentiment classifier.
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
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
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
	}, nil
}

// SpeechConfig describes the TTS provider.
type SpeechConfig struct {
	AppID       string
	AccessToken string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "es-ES"),
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// StorageConfig locates the persistence file.
type StorageConfig struct {
	Path string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{Path: getEnvOrDefault("STORAGE_PATH", "selene.db")}
}

// SessionConfig tunes the orchestration layer. Timeouts default to zero,
// meaning external calls run unbounded.
type SessionConfig struct {
	ChatTimeout      time.Duration
	SentimentTimeout time.Duration
	SpeechTimeout    time.Duration
	AutosaveDebounce time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	chatTimeout, err := parseTimeoutEnv("AI_TIMEOUT")
	if err != nil {
		return SessionConfig{}, err
	}

	sentimentTimeout, err := parseTimeoutEnv("SENTIMENT_TIMEOUT")
	if err != nil {
		return SessionConfig{}, err
	}

	speechTimeout, err := parseTimeoutEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SessionConfig{}, err
	}

	debounce := 500 * time.Millisecond
	if override, err := parseOptionalIntEnv("AUTOSAVE_DEBOUNCE_MS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil && *override >= 0 {
		debounce = time.Duration(*override) * time.Millisecond
	}

	return SessionConfig{
		ChatTimeout:      chatTimeout,
		SentimentTimeout: sentimentTimeout,
		SpeechTimeout:    speechTimeout,
		AutosaveDebounce: debounce,
	}, nil
}

func parseTimeoutEnv(key string) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil || *seconds <= 0 {
		return 0, nil
	}
	return time.Duration(*seconds) * time.Second, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
