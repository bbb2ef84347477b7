package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"dixi/internal/bootstrap"
	"dixi/internal/config"
	"dixi/internal/domain"
)

const (
	eventRecording  = "dixi:recording"
	eventProcessing = "dixi:processing"
	eventMessages   = "dixi:messages"
	eventPlayback   = "dixi:playback"
	eventError      = "dixi:error"
)

// Status is the backend snapshot the UI renders.
type Status struct {
	Recorder   domain.RecorderStatus `json:"recorder"`
	Playback   domain.PlaybackStatus `json:"playback"`
	Processing bool                  `json:"processing"`
	Mode       domain.ChatMode       `json:"mode"`
	SourceLang string                `json:"sourceLang"`
	TargetLang string                `json:"targetLang"`
	Message    string                `json:"message,omitempty"`
}

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(bootstrap.Shell{
		Events:      a,
		Permissions: &dialogPermissions{app: a},
		OpenURL: func(_ context.Context, target string) error {
			runtime.BrowserOpenURL(a.ctx, target)
			return nil
		},
	})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ready = true
	if err := services.Start(ctx); err != nil {
		services.Logger.Warn("starting with an empty message log", zap.Error(err))
	}
	a.RecordingStateChanged(domain.RecordingStateIdle)
}

func (a *App) shutdown(ctx context.Context) {
	if !a.ready {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.services.Close(ctx); err != nil {
		a.services.Logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// StartRecording opens the microphone.
func (a *App) StartRecording() (Status, error) {
	if err := a.requireReady(); err != nil {
		return Status{}, err
	}
	if err := a.services.Recorder.Start(a.ctx); err != nil {
		return a.GetStatus(), err
	}
	return a.GetStatus(), nil
}

// StopRecording stops the microphone and sends the clip as a new turn.
func (a *App) StopRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if a.services.Shake != nil {
		a.services.Shake.CancelAutoStop()
	}
	clip, err := a.services.Recorder.Stop(a.ctx)
	if err != nil {
		return err
	}
	if clip == "" {
		return nil
	}
	return a.services.Pipeline.ProcessAudioMessage(a.ctx, clip)
}

// AbortRecording discards an in-progress recording.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if a.services.Shake != nil {
		a.services.Shake.CancelAutoStop()
	}
	if err := a.services.Recorder.Abort(); err != nil {
		if errors.Is(err, domain.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// SendText sends typed text as a new turn.
func (a *App) SendText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Pipeline.ProcessTextMessage(a.ctx, text)
}

// ResendMessage re-runs a user message as a new turn.
func (a *App) ResendMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Pipeline.ResendMessage(a.ctx, id)
}

// PlayMessage plays, pauses or resumes the message with id.
func (a *App) PlayMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	for _, msg := range a.services.Pipeline.Messages() {
		if msg.ID == id {
			a.services.Player.PlayAudio(a.ctx, msg)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
}

// StopAudio stops whatever is playing.
func (a *App) StopAudio() {
	if a.requireReady() != nil {
		return
	}
	a.services.Player.StopCurrentAudio(a.ctx)
}

func (a *App) DeleteMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Pipeline.DeleteMessage(a.ctx, id)
}

func (a *App) ClearChat() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Pipeline.ClearChat(a.ctx)
}

// GetMessages returns the message log.
func (a *App) GetMessages() []domain.Message {
	if a.requireReady() != nil {
		return []domain.Message{}
	}
	return a.services.Pipeline.Messages()
}

// SetMode switches between assistant replies and translation.
func (a *App) SetMode(mode string) Status {
	if a.requireReady() == nil {
		a.services.Pipeline.SetMode(domain.ParseChatMode(strings.ToLower(strings.TrimSpace(mode))))
	}
	return a.GetStatus()
}

// SetLanguages selects the translation pair. An empty target picks the
// counterpart of source.
func (a *App) SetLanguages(source string, target string) (Status, error) {
	if err := a.requireReady(); err != nil {
		return Status{}, err
	}
	if err := a.services.Pipeline.SetLanguages(source, target); err != nil {
		return a.GetStatus(), err
	}
	return a.GetStatus(), nil
}

func (a *App) SwapLanguages() Status {
	if a.requireReady() == nil {
		a.services.Pipeline.SwapLanguages()
	}
	return a.GetStatus()
}

// GetStatus returns the current backend status.
func (a *App) GetStatus() Status {
	if !a.ready {
		if a.bootErr != nil {
			return Status{Recorder: domain.RecorderStatus{State: domain.RecordingStateError}, Message: a.bootErr.Error()}
		}
		return Status{Recorder: domain.RecorderStatus{State: domain.RecordingStateIdle}}
	}

	mode, source, target := a.services.Pipeline.Settings()
	return Status{
		Recorder:   a.services.Recorder.Status(),
		Playback:   a.services.Player.Status(),
		Processing: a.services.Pipeline.Busy(),
		Mode:       mode,
		SourceLang: source,
		TargetLang: target,
	}
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	model := cfg.OpenAI.TranscriptionModel
	if cfg.Transcription.Provider == config.TranscriptionProviderDeepgram {
		model = cfg.Deepgram.Model
	}
	return map[string]string{
		"transcription":      cfg.Transcription.Provider,
		"transcriptionModel": model,
		"chatModel":          cfg.OpenAI.ChatModel,
		"store":              cfg.Store.Type,
		"audioInput":         cfg.Audio.InputDevice,
		"audioInputFormat":   cfg.Audio.InputFormat,
		"speechLocale":       cfg.Playback.DefaultLocale,
		"triggersFile":       cfg.Triggers.Path,
		"shake":              fmt.Sprintf("%t", a.services.Shake != nil),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// RecordingStateChanged emits recorder lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(state domain.RecordingState) {
	a.emit(eventRecording, map[string]string{
		"state":   string(state),
		"message": recordingStateMessage(state),
	})
}

// ProcessingChanged emits the processing indicator.
func (a *App) ProcessingChanged(processing bool) {
	a.emit(eventProcessing, map[string]bool{"processing": processing})
}

// MessagesChanged emits the full message log.
func (a *App) MessagesChanged(messages []domain.Message) {
	a.emit(eventMessages, messages)
}

// PlaybackChanged emits the playback session status.
func (a *App) PlaybackChanged(status domain.PlaybackStatus) {
	a.emit(eventPlayback, status)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(event string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, event, payload)
}

func recordingStateMessage(state domain.RecordingState) string {
	switch state {
	case domain.RecordingStateIdle:
		return "Listo"
	case domain.RecordingStateRecording:
		return "Grabando..."
	case domain.RecordingStateStopped:
		return "Grabación detenida"
	case domain.RecordingStateError:
		return "Error de grabación"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "No se pudo iniciar la aplicación"
	case domain.ErrorCodePermission:
		return "Se necesita permiso para usar el micrófono"
	case domain.ErrorCodeRecording:
		return "No se pudo iniciar la grabación. Por favor, intenta de nuevo."
	case domain.ErrorCodeTranscription:
		return "Hubo un problema al procesar tu mensaje de audio. Por favor, intenta de nuevo."
	case domain.ErrorCodeTranslation, domain.ErrorCodeCompletion:
		return "Hubo un problema al procesar tu mensaje. Por favor, intenta de nuevo."
	case domain.ErrorCodePersistence:
		return "No se pudieron guardar los mensajes"
	case domain.ErrorCodeBusy:
		return "Espera a que termine el mensaje anterior"
	default:
		if detail == "" {
			return "Error desconocido"
		}
		return detail
	}
}

// dialogPermissions asks once per run through a native dialog.
type dialogPermissions struct {
	app *App

	mu      sync.Mutex
	granted bool
}

func (p *dialogPermissions) RequestMicrophone(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.granted {
		return true, nil
	}
	if p.app.ctx == nil {
		return false, errors.New("no window to ask for microphone access")
	}

	answer, err := runtime.MessageDialog(p.app.ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Micrófono",
		Message:       "Dixi necesita acceso al micrófono para grabar tus mensajes de voz.",
		Buttons:       []string{"Permitir", "Cancelar"},
		DefaultButton: "Permitir",
		CancelButton:  "Cancelar",
	})
	if err != nil {
		return false, err
	}
	p.granted = isAffirmative(answer)
	return p.granted, nil
}

func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "permitir", "yes", "ok", "sí", "si":
		return true
	default:
		return false
	}
}
