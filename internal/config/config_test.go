package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dixi/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "DIXI_TRANSCRIPTION_PROVIDER",
		"DIXI_DATA_DIR", "DIXI_TRIGGERS_FILE", "DIXI_SOURCE_LANG", "DIXI_TARGET_LANG",
		"DIXI_MODE", "DIXI_STORE", "DIXI_STORE_PATH", "DIXI_SHAKE_THRESHOLD",
		"DIXI_SHAKE_AUTOSTOP_MS", "DIXI_PROVIDER_TIMEOUT_MS", "OPENAI_TIMEOUT_MS",
		"DIXI_AUDIO_INPUT_DEVICE", "PULSE_SOURCE", "DIXI_SAMPLE_RATE", "DIXI_AUDIO_CHUNK_SIZE",
		"OPENAI_MAX_TOKENS", "DIXI_REDIS_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "dixi")
	if cfg.Store.Type != "file" || cfg.Store.Path != filepath.Join(dataDir, "messages.json") {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Store.Key != "messages" {
		t.Fatalf("expected default key messages, got %q", cfg.Store.Key)
	}
	if cfg.Audio.ClipDir != filepath.Join(dataDir, "clips") {
		t.Fatalf("unexpected clip dir: %q", cfg.Audio.ClipDir)
	}
	if cfg.Transcription.Provider != TranscriptionProviderOpenAI {
		t.Fatalf("expected openai provider, got %q", cfg.Transcription.Provider)
	}
	if cfg.OpenAI.ChatModel != "gpt-3.5-turbo" || cfg.OpenAI.MaxTokens != 100 {
		t.Fatalf("unexpected openai defaults: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.APIKey != "" || cfg.Deepgram.APIKey != "" {
		t.Fatal("credentials must only come from the environment")
	}
	if cfg.Chat.Mode != domain.ChatModeAssistant || cfg.Chat.SourceLang != "es" || cfg.Chat.TargetLang != "pt" {
		t.Fatalf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if cfg.Shake.Threshold != 2 || cfg.Shake.Debounce != time.Second || cfg.Shake.AutoStop != 5*time.Second || cfg.Shake.Interval != 100*time.Millisecond {
		t.Fatalf("unexpected shake defaults: %+v", cfg.Shake)
	}
	if cfg.Triggers.EmergencyNumber != "112" {
		t.Fatalf("unexpected emergency number: %q", cfg.Triggers.EmergencyNumber)
	}
	if cfg.Triggers.Path != filepath.Join(home, ".config", "dixi", "triggers.rules") {
		t.Fatalf("unexpected triggers path: %q", cfg.Triggers.Path)
	}
	if cfg.Audio.InputDevice != "default" {
		t.Fatalf("unexpected input device: %q", cfg.Audio.InputDevice)
	}
	if cfg.OpenAI.Timeout != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.OpenAI.Timeout)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("DIXI_MODE", "Translator")
	t.Setenv("DIXI_SOURCE_LANG", "pt")
	t.Setenv("DIXI_TARGET_LANG", "pt")
	t.Setenv("DIXI_STORE", "SQLITE")
	t.Setenv("DIXI_SHAKE_THRESHOLD", "-1")
	t.Setenv("DIXI_SHAKE_AUTOSTOP_MS", "3000")
	t.Setenv("DIXI_PROVIDER_TIMEOUT_MS", "bad")
	t.Setenv("OPENAI_TIMEOUT_MS", "15000")
	t.Setenv("PULSE_SOURCE", "alsa_input.usb")
	t.Setenv("DIXI_SAMPLE_RATE", "0")
	t.Setenv("DIXI_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("OPENAI_MAX_TOKENS", "abc")
	t.Setenv("DIXI_REDIS_TTL_SECONDS", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-env" {
		t.Fatalf("expected trimmed key, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Chat.Mode != domain.ChatModeTranslator {
		t.Fatalf("expected translator mode, got %q", cfg.Chat.Mode)
	}
	if cfg.Chat.SourceLang != "pt" || cfg.Chat.TargetLang != "es" {
		t.Fatalf("expected identical target to fall back to counterpart, got %+v", cfg.Chat)
	}
	if cfg.Store.Type != "sqlite" {
		t.Fatalf("expected sqlite store, got %q", cfg.Store.Type)
	}
	if cfg.Shake.Threshold != 2 || cfg.Shake.AutoStop != 3*time.Second {
		t.Fatalf("unexpected shake config: %+v", cfg.Shake)
	}
	if cfg.OpenAI.Timeout != 15*time.Second || cfg.Deepgram.Timeout != 15*time.Second {
		t.Fatalf("expected secondary timeout fallback, got %s", cfg.OpenAI.Timeout)
	}
	if cfg.Audio.InputDevice != "alsa_input.usb" {
		t.Fatalf("expected pulse source fallback, got %q", cfg.Audio.InputDevice)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Deepgram.ChunkSize != 8192 || cfg.OpenAI.MaxTokens != 100 {
		t.Fatalf("invalid numbers should fall back: %+v %+v", cfg.Audio, cfg.Deepgram)
	}
	if cfg.Store.RedisTTL != 0 {
		t.Fatalf("expected negative ttl to clamp, got %s", cfg.Store.RedisTTL)
	}
}

func TestLoadPicksDeepgramWhenOnlyItsKeyIsSet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("DEEPGRAM_API_KEY", "dg-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcription.Provider != TranscriptionProviderDeepgram {
		t.Fatalf("expected deepgram, got %q", cfg.Transcription.Provider)
	}

	t.Setenv("DIXI_TRANSCRIPTION_PROVIDER", "whisper.cpp")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcription.Provider != TranscriptionProviderOpenAI {
		t.Fatalf("unknown provider should fall back to openai, got %q", cfg.Transcription.Provider)
	}
}

func TestLoadUsesTriggersFallbackOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	userRules := filepath.Join(home, ".config", "dixi", "triggers.rules")
	if err := os.MkdirAll(filepath.Dir(userRules), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(userRules, []byte("call /sos/\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Triggers.Path != userRules {
		t.Fatalf("expected user rules, got %q", cfg.Triggers.Path)
	}

	override := filepath.Join(home, "custom.rules")
	t.Setenv("DIXI_TRIGGERS_FILE", override)
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Triggers.Path != override {
		t.Fatalf("expected explicit override, got %q", cfg.Triggers.Path)
	}
}
