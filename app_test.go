package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"dixi/internal/bootstrap"
	"dixi/internal/config"
	"dixi/internal/domain"
	"dixi/internal/store"
	"dixi/internal/usecase"
)

type staticPermissions struct {
	granted bool
}

func (p staticPermissions) RequestMicrophone(_ context.Context) (bool, error) {
	return p.granted, nil
}

type echoCompletion struct{}

func (echoCompletion) Complete(_ context.Context, text string) (string, error) {
	return "eco: " + text, nil
}

type upperTranslation struct{}

func (upperTranslation) Translate(_ context.Context, text string, _ string, _ string) (string, error) {
	return "[" + text + "]", nil
}

func newTestApp(t *testing.T, granted bool) *App {
	t.Helper()

	app := &App{}
	logger := zaptest.NewLogger(t)
	messages, err := store.NewStore(store.StoreTypeMemory)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	recorder := usecase.NewRecorder(staticPermissions{granted: granted}, nil, app, logger, usecase.RecorderConfig{})
	player := usecase.NewPlayer(nil, nil, app, logger, usecase.PlayerConfig{})
	pipeline := usecase.NewPipeline(nil, echoCompletion{}, upperTranslation{}, messages, player, nil, nil, app, logger, usecase.PipelineConfig{})

	app.services = bootstrap.Services{
		Recorder: recorder,
		Player:   player,
		Pipeline: pipeline,
		Store:    messages,
		Logger:   zap.NewNop(),
		Config:   config.Config{Transcription: config.TranscriptionConfig{Provider: config.TranscriptionProviderOpenAI}},
	}
	app.ready = true
	return app
}

func TestRecordingStateMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.RecordingState]string{
		domain.RecordingStateIdle:      "Listo",
		domain.RecordingStateRecording: "Grabando...",
		domain.RecordingStateStopped:   "Grabación detenida",
		domain.RecordingStateError:     "Error de grabación",
	}

	for state, want := range cases {
		state := state
		want := want
		t.Run(string(state), func(t *testing.T) {
			t.Parallel()
			if got := recordingStateMessage(state); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := recordingStateMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown state message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "No se pudo iniciar la aplicación",
		domain.ErrorCodePermission:    "Se necesita permiso para usar el micrófono",
		domain.ErrorCodeRecording:     "No se pudo iniciar la grabación. Por favor, intenta de nuevo.",
		domain.ErrorCodeTranscription: "Hubo un problema al procesar tu mensaje de audio. Por favor, intenta de nuevo.",
		domain.ErrorCodeCompletion:    "Hubo un problema al procesar tu mensaje. Por favor, intenta de nuevo.",
		domain.ErrorCodeTranslation:   "Hubo un problema al procesar tu mensaje. Por favor, intenta de nuevo.",
		domain.ErrorCodePersistence:   "No se pudieron guardar los mensajes",
		domain.ErrorCodeBusy:          "Espera a que termine el mensaje anterior",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Error desconocido" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestIsAffirmative(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{"Permitir", " yes ", "OK", "Sí"} {
		if !isAffirmative(answer) {
			t.Fatalf("expected %q to grant", answer)
		}
	}
	for _, answer := range []string{"Cancelar", "No", ""} {
		if isAffirmative(answer) {
			t.Fatalf("expected %q to deny", answer)
		}
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if err := app.SendText("hola"); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from bindings, got %v", err)
	}
	if got := app.GetMessages(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty log before startup, got %+v", got)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.Recorder.State != domain.RecordingStateIdle || status.Processing {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.Recorder.State != domain.RecordingStateError || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
}

func TestStartRecordingPermissionDenied(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, false)
	status, err := app.StartRecording()
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if status.Recorder.State != domain.RecordingStateError {
		t.Fatalf("expected error state, got %+v", status.Recorder)
	}
}

func TestStopAndAbortWhenIdle(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, true)
	if err := app.StopRecording(); err != nil {
		t.Fatalf("expected idle stop to be a no-op, got %v", err)
	}
	if err := app.AbortRecording(); err != nil {
		t.Fatalf("expected idle abort to be a no-op, got %v", err)
	}
}

func TestSendTextRunsTurn(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, true)
	if err := app.SendText("   "); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected empty input error, got %v", err)
	}
	if err := app.SendText("hola"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	messages := app.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %+v", messages)
	}
	if messages[0].Content() != "hola" || messages[1].Content() != "eco: hola" {
		t.Fatalf("unexpected log: %q, %q", messages[0].Content(), messages[1].Content())
	}
	if app.GetStatus().Processing {
		t.Fatalf("expected processing to be cleared")
	}

	if err := app.DeleteMessage(messages[1].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := app.PlayMessage(messages[1].ID); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := app.ClearChat(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if got := app.GetMessages(); len(got) != 0 {
		t.Fatalf("expected cleared log, got %+v", got)
	}
}

func TestTranslatorModeAndLanguages(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, true)
	status := app.SetMode("Translator")
	if status.Mode != domain.ChatModeTranslator || status.SourceLang != "es" || status.TargetLang != "pt" {
		t.Fatalf("unexpected status: %+v", status)
	}

	status = app.SwapLanguages()
	if status.SourceLang != "pt" || status.TargetLang != "es" {
		t.Fatalf("expected swapped pair, got %+v", status)
	}

	if _, err := app.SetLanguages("fr", ""); !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Fatalf("expected unsupported language, got %v", err)
	}

	if err := app.SendText("bom dia"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	messages := app.GetMessages()
	if len(messages) != 2 || messages[1].Kind() != domain.MessageKindTranslation {
		t.Fatalf("expected translation reply, got %+v", messages)
	}
	if messages[1].Content() != "[bom dia]" {
		t.Fatalf("unexpected translation: %q", messages[1].Content())
	}
}

func TestRuntimeInfoHasNoSecrets(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, true)
	app.services.Config.OpenAI.APIKey = "sk-secret"
	app.services.Config.Deepgram.APIKey = "dg-secret"

	for key, value := range app.GetRuntimeInfo() {
		if value == "sk-secret" || value == "dg-secret" {
			t.Fatalf("runtime info leaks a credential under %q", key)
		}
	}
}
