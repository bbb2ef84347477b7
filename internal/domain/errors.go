package domain

import "errors"

// Failure categories. Collaborator errors are wrapped with one of these so
// callers can classify them with errors.Is.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrRecording        = errors.New("recording failed")
	ErrTranscription    = errors.New("transcription failed")
	ErrTranslation      = errors.New("translation failed")
	ErrCompletion       = errors.New("completion failed")
	ErrPlayback         = errors.New("playback failed")
	ErrPersistence      = errors.New("persistence failed")
)

var (
	ErrRecordingInProgress = errors.New("a recording is already in progress")
	ErrNoActiveSession     = errors.New("no active recording session")
	ErrTurnInFlight        = errors.New("a message is still being processed")
	ErrMessageNotFound     = errors.New("message not found")
	ErrEmptyInput          = errors.New("message is empty")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// CodeFor maps an error to the UI error code that describes it.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermission
	case errors.Is(err, ErrRecording), errors.Is(err, ErrRecordingInProgress):
		return ErrorCodeRecording
	case errors.Is(err, ErrTranscription):
		return ErrorCodeTranscription
	case errors.Is(err, ErrTranslation):
		return ErrorCodeTranslation
	case errors.Is(err, ErrCompletion):
		return ErrorCodeCompletion
	case errors.Is(err, ErrPersistence):
		return ErrorCodePersistence
	case errors.Is(err, ErrTurnInFlight):
		return ErrorCodeBusy
	default:
		return ErrorCodeStartup
	}
}
