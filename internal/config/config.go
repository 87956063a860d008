// Package config handles loading and validating the kora configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the kora daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Interview  InterviewConfig  `mapstructure:"interview"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Playback   PlaybackConfig   `mapstructure:"playback"`
	Followup   FollowupConfig   `mapstructure:"followup"`
	Credential CredentialConfig `mapstructure:"credential"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// InterviewConfig controls the question bank and the interview flow.
type InterviewConfig struct {
	QuestionsFile    string        `mapstructure:"questions_file"` // optional YAML question bank
	Style            string        `mapstructure:"style"`          // serious, friendly, campus
	FollowupsEnabled bool          `mapstructure:"followups_enabled"`
	Greeting         string        `mapstructure:"greeting"`
	QuestionDelay    time.Duration `mapstructure:"question_delay"` // pause between greeting and first question
	Language         string        `mapstructure:"language"`       // BCP-47 tag used for capture and playback
}

// CaptureConfig selects the speech-to-text backend.
type CaptureConfig struct {
	Backend    string        `mapstructure:"backend"` // "bridge", "whisper" or "none"
	MaxSilence time.Duration `mapstructure:"max_silence"`
	Whisper    WhisperConfig `mapstructure:"whisper"`
}

// WhisperConfig holds server-side transcription settings.
type WhisperConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Type     string `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	Language string `mapstructure:"language"` // ISO-639-1
}

// PlaybackConfig selects the text-to-speech backend.
type PlaybackConfig struct {
	Backend string      `mapstructure:"backend"` // "bridge", "piper" or "none"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// Endpoints maps ISO-639-1 codes to per-language instances and takes precedence.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// FollowupConfig holds the remote chat-completion settings.
type FollowupConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"` // zero means the transport default
	Probe       bool          `mapstructure:"probe"`   // check provider reachability at startup
}

// CredentialConfig locates the persisted API credential.
type CredentialConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from .env, file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./kora.yaml, ./configs/kora.yaml, /etc/kora/kora.yaml.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("kora")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kora")
	}

	// Environment variables: KORA_FOLLOWUP_API_KEY, KORA_INTERVIEW_STYLE, etc.
	v.SetEnvPrefix("KORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Followup.APIKey = resolveEnvRef(cfg.Followup.APIKey)
	cfg.Capture.Whisper.APIKey = resolveEnvRef(cfg.Capture.Whisper.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("interview.questions_file", "")
	v.SetDefault("interview.style", "friendly")
	v.SetDefault("interview.followups_enabled", true)
	v.SetDefault("interview.greeting", "你好，我是Kora的语音面试官，接下来我会用中文向你提问一些常见面试问题，请用语音作答。")
	v.SetDefault("interview.question_delay", 800*time.Millisecond)
	v.SetDefault("interview.language", "zh-CN")
	v.SetDefault("capture.backend", "bridge")
	v.SetDefault("capture.max_silence", 2*time.Second)
	v.SetDefault("capture.whisper.endpoint", "https://api.openai.com/v1/audio/transcriptions")
	v.SetDefault("capture.whisper.type", "openai")
	v.SetDefault("capture.whisper.model", "whisper-1")
	v.SetDefault("capture.whisper.language", "zh")
	v.SetDefault("capture.whisper.api_key", "")
	v.SetDefault("playback.backend", "bridge")
	v.SetDefault("playback.piper.endpoint", "localhost:10200")
	v.SetDefault("followup.api_key", "")
	v.SetDefault("followup.base_url", "https://api.deepseek.com")
	v.SetDefault("followup.model", "deepseek-chat")
	v.SetDefault("followup.temperature", 0.7)
	v.SetDefault("followup.max_tokens", 128)
	v.SetDefault("followup.timeout", time.Duration(0))
	v.SetDefault("followup.probe", false)
	v.SetDefault("credential.file", defaultCredentialFile())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	switch c.Capture.Backend {
	case "bridge", "whisper", "none":
	default:
		return fmt.Errorf("capture.backend must be bridge, whisper or none, got %q", c.Capture.Backend)
	}
	switch c.Playback.Backend {
	case "bridge", "piper", "none":
	default:
		return fmt.Errorf("playback.backend must be bridge, piper or none, got %q", c.Playback.Backend)
	}
	if c.Capture.MaxSilence <= 0 {
		return fmt.Errorf("capture.max_silence must be positive")
	}
	if c.Followup.MaxTokens <= 0 {
		return fmt.Errorf("followup.max_tokens must be positive")
	}
	if c.Followup.Temperature < 0 || c.Followup.Temperature > 2 {
		return fmt.Errorf("followup.temperature must be between 0 and 2")
	}
	return nil
}

func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".kora-credential.yaml"
	}
	return dir + "/kora/credential.yaml"
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var
// value. A reference to an unset variable resolves to "".
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
