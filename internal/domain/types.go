package domain

import "time"

// RecordingState models the microphone capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStateStopped   RecordingState = "stopped"
	RecordingStateError     RecordingState = "error"
)

// PlaybackBackend identifies which output engine owns the current playback.
type PlaybackBackend string

const (
	PlaybackBackendNone            PlaybackBackend = ""
	PlaybackBackendRecordedAudio   PlaybackBackend = "recorded_audio"
	PlaybackBackendSpeechSynthesis PlaybackBackend = "speech_synthesis"
)

// PlaybackState is the visible state of the single playback session.
type PlaybackState string

const (
	PlaybackStateStopped PlaybackState = "stopped"
	PlaybackStatePlaying PlaybackState = "playing"
	PlaybackStatePaused  PlaybackState = "paused"
)

// PlaybackStatus is a snapshot of the playback session for the UI.
type PlaybackStatus struct {
	ActiveMessageID string          `json:"activeMessageId,omitempty"`
	Backend         PlaybackBackend `json:"backend,omitempty"`
	State           PlaybackState   `json:"state"`
}

// Playing reports whether audio is currently audible.
func (s PlaybackStatus) Playing() bool {
	return s.State == PlaybackStatePlaying
}

// Paused reports whether the active target is paused.
func (s PlaybackStatus) Paused() bool {
	return s.State == PlaybackStatePaused
}

// ChatMode selects what the pipeline does with the user's text.
type ChatMode string

const (
	ChatModeAssistant  ChatMode = "assistant"
	ChatModeTranslator ChatMode = "translator"
)

// ParseChatMode maps a configuration value to a mode, defaulting to assistant.
func ParseChatMode(value string) ChatMode {
	switch ChatMode(value) {
	case ChatModeTranslator:
		return ChatModeTranslator
	default:
		return ChatModeAssistant
	}
}

// ErrorCode identifies user-visible, non-fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodePermission    ErrorCode = "permission"
	ErrorCodeRecording     ErrorCode = "recording"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeTranslation   ErrorCode = "translation"
	ErrorCodeCompletion    ErrorCode = "completion"
	ErrorCodePersistence   ErrorCode = "persistence"
	ErrorCodeBusy          ErrorCode = "busy"
)

// Reading is one accelerometer sample.
type Reading struct {
	X float64
	Y float64
	Z float64
	At time.Time
}

// Sum is the scalar the shake detector compares between consecutive readings.
func (r Reading) Sum() float64 {
	return r.X + r.Y + r.Z
}

// RecorderStatus summarizes the recorder for the UI.
type RecorderStatus struct {
	State     RecordingState `json:"state"`
	ElapsedMS int64          `json:"elapsedMs"`
}

// Status summarizes the whole runtime for the UI.
type Status struct {
	Recorder   RecorderStatus `json:"recorder"`
	Playback   PlaybackStatus `json:"playback"`
	Processing bool           `json:"processing"`
	Mode       ChatMode       `json:"mode"`
	SourceLang string         `json:"sourceLang"`
	TargetLang string         `json:"targetLang"`
	Message    string         `json:"message,omitempty"`
}
