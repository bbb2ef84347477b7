package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dixi/internal/domain"
)

const (
	TranscriptionProviderOpenAI   = "openai"
	TranscriptionProviderDeepgram = "deepgram"
)

// Config stores runtime configuration. Credentials are only ever read from
// the environment.
type Config struct {
	OpenAI        OpenAIConfig
	Deepgram      DeepgramConfig
	Transcription TranscriptionConfig
	Chat          ChatConfig
	Audio         AudioConfig
	Playback      PlaybackConfig
	Store         StoreConfig
	Triggers      TriggersConfig
	Shake         ShakeConfig
	Diagnostics   DiagnosticsConfig
	Log           LogConfig
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	MaxTokens          int
	SystemPrompt       string
	Timeout            time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
	Timeout     time.Duration
}

type TranscriptionConfig struct {
	Provider string
	Language string
}

type ChatConfig struct {
	Mode       domain.ChatMode
	SourceLang string
	TargetLang string
	Welcome    string
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	SpeechCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ClipDir         string
}

type PlaybackConfig struct {
	DefaultLocale string
}

type StoreConfig struct {
	Type          string
	Key           string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	SQLiteDSN     string
}

type TriggersConfig struct {
	Enabled         bool
	Path            string
	EmergencyNumber string
	MapsURL         string
}

type ShakeConfig struct {
	Enabled    bool
	DevicePath string
	Threshold  float64
	Debounce   time.Duration
	AutoStop   time.Duration
	Interval   time.Duration
}

type DiagnosticsConfig struct {
	Addr string
}

type LogConfig struct {
	Development bool
	Level       string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("DIXI_DATA_DIR", filepath.Join(home, ".local", "share", "dixi"))
	triggersPath := strings.TrimSpace(os.Getenv("DIXI_TRIGGERS_FILE"))
	if triggersPath == "" {
		triggersPath = firstExisting(
			filepath.Join(home, ".config", "dixi", "triggers.rules"),
			filepath.Join("/etc", "dixi", "triggers.rules"),
		)
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	deepgramKey := strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	providerTimeout := time.Duration(firstNonNegativeInt("DIXI_PROVIDER_TIMEOUT_MS", "OPENAI_TIMEOUT_MS", 60000)) * time.Millisecond

	sourceLang := strings.ToLower(envOrDefault("DIXI_SOURCE_LANG", domain.LanguageSpanish))
	cfg := Config{
		OpenAI: OpenAIConfig{
			APIKey:             openAIKey,
			BaseURL:            envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			TranscriptionModel: envOrDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
			ChatModel:          envOrDefault("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
			MaxTokens:          envOrDefaultInt("OPENAI_MAX_TOKENS", 100),
			SystemPrompt:       strings.TrimSpace(os.Getenv("DIXI_SYSTEM_PROMPT")),
			Timeout:            providerTimeout,
		},
		Deepgram: DeepgramConfig{
			APIKey:      deepgramKey,
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			ChunkSize:   envOrDefaultInt("DIXI_AUDIO_CHUNK_SIZE", 8192),
			Timeout:     providerTimeout,
		},
		Transcription: TranscriptionConfig{
			Provider: strings.ToLower(envOrDefault("DIXI_TRANSCRIPTION_PROVIDER", defaultProvider(openAIKey, deepgramKey))),
			Language: strings.ToLower(envOrDefault("DIXI_TRANSCRIPTION_LANGUAGE", domain.LanguageSpanish)),
		},
		Chat: ChatConfig{
			Mode:       domain.ParseChatMode(strings.ToLower(envOrDefault("DIXI_MODE", string(domain.ChatModeAssistant)))),
			SourceLang: sourceLang,
			TargetLang: strings.ToLower(strings.TrimSpace(os.Getenv("DIXI_TARGET_LANG"))),
			Welcome:    strings.TrimSpace(os.Getenv("DIXI_WELCOME_MESSAGE")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("DIXI_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("DIXI_FFPLAY_COMMAND", "ffplay"),
			SpeechCommand:   envOrDefault("DIXI_ESPEAK_COMMAND", "espeak-ng"),
			InputFormat:     envOrDefault("DIXI_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("DIXI_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("DIXI_SAMPLE_RATE", 44100),
			Channels:   envOrDefaultInt("DIXI_CHANNELS", 1),
			ClipDir:    envOrDefault("DIXI_CLIP_DIR", filepath.Join(dataDir, "clips")),
		},
		Playback: PlaybackConfig{
			DefaultLocale: envOrDefault("DIXI_SPEECH_LOCALE", domain.DefaultSpeechLocale),
		},
		Store: StoreConfig{
			Type:          strings.ToLower(envOrDefault("DIXI_STORE", "file")),
			Key:           envOrDefault("DIXI_STORE_KEY", "messages"),
			Path:          envOrDefault("DIXI_STORE_PATH", filepath.Join(dataDir, "messages.json")),
			RedisAddr:     envOrDefault("DIXI_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("DIXI_REDIS_PASSWORD"),
			RedisDB:       envOrDefaultInt("DIXI_REDIS_DB", 0),
			RedisTTL:      time.Duration(envOrDefaultInt("DIXI_REDIS_TTL_SECONDS", 0)) * time.Second,
			SQLiteDSN:     envOrDefault("DIXI_SQLITE_DSN", filepath.Join(dataDir, "dixi.db")),
		},
		Triggers: TriggersConfig{
			Enabled:         envOrDefaultBool("DIXI_TRIGGERS_ENABLED", true),
			Path:            triggersPath,
			EmergencyNumber: envOrDefault("DIXI_EMERGENCY_NUMBER", "112"),
			MapsURL:         envOrDefault("DIXI_MAPS_URL", "https://www.google.com/maps/search/?api=1&query=%s"),
		},
		Shake: ShakeConfig{
			Enabled:    envOrDefaultBool("DIXI_SHAKE_ENABLED", false),
			DevicePath: strings.TrimSpace(os.Getenv("DIXI_SHAKE_DEVICE")),
			Threshold:  envOrDefaultFloat("DIXI_SHAKE_THRESHOLD", 2),
			Debounce:   time.Duration(envOrDefaultInt("DIXI_SHAKE_DEBOUNCE_MS", 1000)) * time.Millisecond,
			AutoStop:   time.Duration(envOrDefaultInt("DIXI_SHAKE_AUTOSTOP_MS", 5000)) * time.Millisecond,
			Interval:   time.Duration(envOrDefaultInt("DIXI_SHAKE_INTERVAL_MS", 100)) * time.Millisecond,
		},
		Diagnostics: DiagnosticsConfig{
			Addr: strings.TrimSpace(os.Getenv("DIXI_DIAGNOSTICS_ADDR")),
		},
		Log: LogConfig{
			Development: envOrDefaultBool("DIXI_LOG_DEVELOPMENT", false),
			Level:       strings.ToLower(envOrDefault("DIXI_LOG_LEVEL", "info")),
		},
	}

	if cfg.OpenAI.MaxTokens <= 0 {
		cfg.OpenAI.MaxTokens = 100
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Deepgram.ChunkSize < 256 {
		cfg.Deepgram.ChunkSize = 8192
	}
	if cfg.Transcription.Provider != TranscriptionProviderDeepgram {
		cfg.Transcription.Provider = TranscriptionProviderOpenAI
	}
	if !domain.SupportedLanguage(cfg.Chat.SourceLang) {
		cfg.Chat.SourceLang = domain.LanguageSpanish
	}
	if !domain.SupportedLanguage(cfg.Chat.TargetLang) || cfg.Chat.TargetLang == cfg.Chat.SourceLang {
		cfg.Chat.TargetLang = domain.CounterpartLanguage(cfg.Chat.SourceLang)
	}
	if cfg.Shake.Threshold <= 0 {
		cfg.Shake.Threshold = 2
	}
	if cfg.Shake.Debounce <= 0 {
		cfg.Shake.Debounce = time.Second
	}
	if cfg.Shake.AutoStop <= 0 {
		cfg.Shake.AutoStop = 5 * time.Second
	}
	if cfg.Shake.Interval <= 0 {
		cfg.Shake.Interval = 100 * time.Millisecond
	}
	if cfg.Store.RedisTTL < 0 {
		cfg.Store.RedisTTL = 0
	}

	return cfg, nil
}

// defaultProvider picks Deepgram only when it is the one configured key.
func defaultProvider(openAIKey string, deepgramKey string) string {
	if openAIKey == "" && deepgramKey != "" {
		return TranscriptionProviderDeepgram
	}
	return TranscriptionProviderOpenAI
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
