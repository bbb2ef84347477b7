package ports

import (
	"context"
	"time"

	"dixi/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// CaptureSession is a live recording that ends in an encoded clip.
type CaptureSession interface {
	// Stop finalizes the clip and returns its handle.
	Stop() (string, error)
	// Abort ends the capture and discards whatever was recorded.
	Abort() error
}

// RecordingBackend opens microphone capture sessions.
type RecordingBackend interface {
	Start(ctx context.Context, cfg AudioConfig) (CaptureSession, error)
}

// PermissionBroker asks the user for microphone access.
type PermissionBroker interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// PlayableHandle is a loaded clip owned by the recorded-audio backend.
type PlayableHandle interface {
	Play() error
	Pause() error
	Stop() error
	Unload() error
}

// RecordedAudioBackend loads clips for playback. onFinish is called once when
// playback ends on its own, with a non-nil error if decoding failed.
type RecordedAudioBackend interface {
	Load(ctx context.Context, uri string, onFinish func(error)) (PlayableHandle, error)
}

// SpeechSynthesisBackend speaks text without an intermediate file.
type SpeechSynthesisBackend interface {
	Speak(ctx context.Context, text string, locale string, onDone func(), onError func(error)) error
	Stop() error
}

// TranscriptionClient converts a recorded clip into text.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, clip string, languageHint string) (string, error)
}

// CompletionClient produces an assistant reply for user text.
type CompletionClient interface {
	Complete(ctx context.Context, text string) (string, error)
}

// TranslationClient translates text between two language codes.
type TranslationClient interface {
	Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error)
}

// MessageStore persists the ordered message log as a single unit.
type MessageStore interface {
	Load(ctx context.Context) ([]domain.Message, error)
	Save(ctx context.Context, messages []domain.Message) error
}

// Subscription is an active motion sensor listener.
type Subscription interface {
	Remove()
}

// MotionSensor delivers accelerometer readings at a fixed interval.
type MotionSensor interface {
	Subscribe(interval time.Duration, onReading func(domain.Reading)) (Subscription, error)
}

// ActionKind names a side-channel action triggered by message text.
type ActionKind string

const (
	ActionEmergencyCall ActionKind = "call"
	ActionOpenMaps      ActionKind = "maps"
)

// Action is a side effect requested by a trigger match.
type Action struct {
	Kind     ActionKind
	Argument string
}

// TriggerMatcher scans text for side-channel actions.
type TriggerMatcher interface {
	Match(text string) []Action
}

// ActionLauncher performs side-channel actions outside the app.
type ActionLauncher interface {
	Launch(ctx context.Context, action Action) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState)
	ProcessingChanged(processing bool)
	MessagesChanged(messages []domain.Message)
	PlaybackChanged(status domain.PlaybackStatus)
	SessionError(code domain.ErrorCode, detail string)
}
