package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dixi/internal/domain"
	"dixi/internal/metrics"
	"dixi/internal/ports"
)

const timestampLayout = "02/01/2006, 15:04:05"

// errLogReset drops a reply whose turn started before the log was cleared
// or reloaded.
var errLogReset = errors.New("message log was reset during the turn")

// PipelineConfig controls how turns are answered.
type PipelineConfig struct {
	Mode                  domain.ChatMode
	SourceLang            string
	TargetLang            string
	TranscriptionLanguage string
	Welcome               string
}

// playbackControl is the part of the player the pipeline needs to keep
// playback consistent with the log.
type playbackControl interface {
	ActiveMessageID() string
	StopCurrentAudio(ctx context.Context)
}

// Pipeline runs user turns through transcription and the reply step and owns
// the ordered message log.
type Pipeline struct {
	transcriber ports.TranscriptionClient
	responder   responder
	store       ports.MessageStore
	playback    playbackControl
	triggers    ports.TriggerMatcher
	launcher    ports.ActionLauncher
	events      ports.EventSink
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	turnMu sync.Mutex
	busy   bool

	mu       sync.Mutex
	messages []domain.Message
	cfg      PipelineConfig
	// epoch advances whenever the log is replaced wholesale.
	epoch uint64
}

func NewPipeline(
	transcriber ports.TranscriptionClient,
	completion ports.CompletionClient,
	translation ports.TranslationClient,
	store ports.MessageStore,
	playback playbackControl,
	triggers ports.TriggerMatcher,
	launcher ports.ActionLauncher,
	events ports.EventSink,
	logger *zap.Logger,
	cfg PipelineConfig,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Mode = domain.ParseChatMode(string(cfg.Mode))
	if !domain.SupportedLanguage(cfg.SourceLang) {
		cfg.SourceLang = domain.LanguageSpanish
	}
	if !domain.SupportedLanguage(cfg.TargetLang) || cfg.TargetLang == cfg.SourceLang {
		cfg.TargetLang = domain.CounterpartLanguage(cfg.SourceLang)
	}
	if cfg.TranscriptionLanguage == "" {
		cfg.TranscriptionLanguage = domain.LanguageSpanish
	}
	return &Pipeline{
		transcriber: transcriber,
		responder:   newResponder(completion, translation),
		store:       store,
		playback:    playback,
		triggers:    triggers,
		launcher:    launcher,
		events:      events,
		logger:      logger.Named("pipeline"),
		now:         time.Now,
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
		cfg:         cfg,
	}
}

// Load restores the log from the store. A store failure keeps the current
// in-memory log and is reported as a warning.
func (p *Pipeline) Load(ctx context.Context) error {
	stored, err := p.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		metrics.StoreErrorsTotal.WithLabelValues("load").Inc()
		p.logger.Warn("failed to load messages", zap.Error(err))
		p.events.SessionError(domain.ErrorCodePersistence, err.Error())
		return err
	}

	p.mu.Lock()
	p.messages = cloneMessages(stored)
	p.epoch++
	snapshot := cloneMessages(p.messages)
	p.mu.Unlock()

	p.logger.Info("messages loaded", zap.Int("count", len(snapshot)))
	p.events.MessagesChanged(snapshot)
	return nil
}

// Messages returns a copy of the log.
func (p *Pipeline) Messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneMessages(p.messages)
}

// Busy reports whether a turn is being processed.
func (p *Pipeline) Busy() bool {
	p.turnMu.Lock()
	defer p.turnMu.Unlock()
	return p.busy
}

// Settings returns the current mode and language pair.
func (p *Pipeline) Settings() (domain.ChatMode, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Mode, p.cfg.SourceLang, p.cfg.TargetLang
}

// SetMode switches between the assistant and the translator.
func (p *Pipeline) SetMode(mode domain.ChatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Mode = domain.ParseChatMode(string(mode))
}

// SetLanguages selects the translation pair. An empty target picks the other
// member of the es/pt pair.
func (p *Pipeline) SetLanguages(source string, target string) error {
	source = strings.ToLower(strings.TrimSpace(source))
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		target = domain.CounterpartLanguage(source)
	}
	if !domain.SupportedLanguage(source) || !domain.SupportedLanguage(target) || source == target {
		return fmt.Errorf("%w: %s -> %s", domain.ErrUnsupportedLanguage, source, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.SourceLang = source
	p.cfg.TargetLang = target
	return nil
}

// SwapLanguages reverses the translation direction.
func (p *Pipeline) SwapLanguages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.SourceLang, p.cfg.TargetLang = p.cfg.TargetLang, p.cfg.SourceLang
}

// ProcessAudioMessage records the clip as a user message and answers it.
// The user message is persisted before anything else, even when another turn
// is in flight, and is never rolled back.
func (p *Pipeline) ProcessAudioMessage(ctx context.Context, clip string) error {
	if strings.TrimSpace(clip) == "" {
		return domain.ErrEmptyInput
	}

	msg := domain.NewUserAudio(p.nextID(), clip, p.timestamp())
	epoch, err := p.appendTurnMessage(ctx, msg)
	if err != nil {
		return err
	}

	if err := p.beginTurn(); err != nil {
		p.logger.Info("clip kept without a reply", zap.String("message", msg.ID))
		return err
	}
	defer p.endTurn()

	settings := p.snapshotSettings()
	settings.epoch = epoch
	logger := p.logger.With(zap.String("input", "audio"), zap.String("mode", string(settings.Mode)))

	hint := settings.TranscriptionLanguage
	if settings.Mode == domain.ChatModeTranslator {
		hint = settings.SourceLang
	}

	started := time.Now()
	text, err := p.transcriber.Transcribe(ctx, clip, hint)
	metrics.StageLatency.WithLabelValues("transcribe").Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return p.failTurn(logger, "audio", settings.Mode, fmt.Errorf("%w: %w", domain.ErrTranscription, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.failTurn(logger, "audio", settings.Mode, fmt.Errorf("%w: empty transcript", domain.ErrTranscription))
	}

	p.dispatchTriggers(ctx, text)
	return p.reply(ctx, logger, "audio", settings, text)
}

// ProcessTextMessage appends typed text as a user message and answers it.
func (p *Pipeline) ProcessTextMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyInput
	}
	if err := p.beginTurn(); err != nil {
		return err
	}
	defer p.endTurn()

	settings := p.snapshotSettings()
	logger := p.logger.With(zap.String("input", "text"), zap.String("mode", string(settings.Mode)))

	epoch, err := p.appendTurnMessage(ctx, domain.NewUserText(p.nextID(), text, p.timestamp()))
	if err != nil {
		return p.failTurn(logger, "text", settings.Mode, err)
	}
	settings.epoch = epoch

	p.dispatchTriggers(ctx, text)
	return p.reply(ctx, logger, "text", settings, text)
}

// ResendMessage runs an existing user message through a new turn.
func (p *Pipeline) ResendMessage(ctx context.Context, id string) error {
	msg, ok := p.find(id)
	if !ok {
		return domain.ErrMessageNotFound
	}
	if msg.Role != domain.RoleUser {
		return fmt.Errorf("message %q is not a user message", id)
	}

	switch body := msg.Body.(type) {
	case domain.AudioBody:
		if p.Busy() {
			p.events.SessionError(domain.ErrorCodeBusy, domain.ErrTurnInFlight.Error())
			return domain.ErrTurnInFlight
		}
		return p.ProcessAudioMessage(ctx, body.Handle)
	case domain.TextBody:
		return p.ProcessTextMessage(ctx, body.Text)
	case domain.TranslationBody:
		return p.ProcessTextMessage(ctx, body.OriginalText)
	default:
		return fmt.Errorf("message %q has no resendable body", id)
	}
}

// DeleteMessage removes one message by id, stopping its playback first.
func (p *Pipeline) DeleteMessage(ctx context.Context, id string) error {
	if p.playback != nil && id != "" && p.playback.ActiveMessageID() == id {
		p.playback.StopCurrentAudio(ctx)
	}

	return p.mutate(ctx, func(messages []domain.Message) ([]domain.Message, error) {
		index := indexOf(messages, id)
		if index < 0 {
			return nil, domain.ErrMessageNotFound
		}
		next := make([]domain.Message, 0, len(messages)-1)
		next = append(next, messages[:index]...)
		next = append(next, messages[index+1:]...)
		return next, nil
	})
}

// ClearChat stops playback and resets the log to empty, or to the welcome
// message when one is configured.
func (p *Pipeline) ClearChat(ctx context.Context) error {
	if p.playback != nil {
		p.playback.StopCurrentAudio(ctx)
	}

	// fn runs under mu, so cfg and epoch are used directly.
	return p.mutate(ctx, func(_ []domain.Message) ([]domain.Message, error) {
		p.epoch++
		if p.cfg.Welcome == "" {
			return []domain.Message{}, nil
		}
		return []domain.Message{domain.NewAssistantText(p.nextID(), p.cfg.Welcome, p.timestamp())}, nil
	})
}

func (p *Pipeline) reply(ctx context.Context, logger *zap.Logger, input string, settings turnSettings, text string) error {
	msg, err := p.responder.Respond(ctx, replyRequest{
		text:       text,
		mode:       settings.Mode,
		sourceLang: settings.SourceLang,
		targetLang: settings.TargetLang,
		id:         p.nextID(),
		timestamp:  p.timestamp(),
	})
	if err != nil {
		return p.failTurn(logger, input, settings.Mode, err)
	}

	err = p.mutate(ctx, func(messages []domain.Message) ([]domain.Message, error) {
		if p.epoch != settings.epoch {
			return nil, errLogReset
		}
		return appendUnique(messages, msg, p.nextID), nil
	})
	if errors.Is(err, errLogReset) {
		metrics.TurnsTotal.WithLabelValues(input, string(settings.Mode), "discarded").Inc()
		logger.Info("reply discarded", zap.Error(err))
		return nil
	}
	if err != nil {
		return p.failTurn(logger, input, settings.Mode, err)
	}

	metrics.TurnsTotal.WithLabelValues(input, string(settings.Mode), "ok").Inc()
	logger.Info("turn completed", zap.String("reply", msg.ID))
	return nil
}

func (p *Pipeline) beginTurn() error {
	p.turnMu.Lock()
	if p.busy {
		p.turnMu.Unlock()
		p.events.SessionError(domain.ErrorCodeBusy, domain.ErrTurnInFlight.Error())
		return domain.ErrTurnInFlight
	}
	p.busy = true
	p.turnMu.Unlock()

	metrics.TurnsInFlight.Inc()
	p.events.ProcessingChanged(true)
	return nil
}

func (p *Pipeline) endTurn() {
	p.turnMu.Lock()
	p.busy = false
	p.turnMu.Unlock()

	metrics.TurnsInFlight.Dec()
	p.events.ProcessingChanged(false)
}

func (p *Pipeline) failTurn(logger *zap.Logger, input string, mode domain.ChatMode, err error) error {
	metrics.TurnsTotal.WithLabelValues(input, string(mode), string(domain.CodeFor(err))).Inc()
	logger.Warn("turn failed", zap.Error(err))
	p.events.SessionError(domain.CodeFor(err), err.Error())
	return err
}

// appendTurnMessage appends the user message of a turn and returns the log
// epoch it landed in.
func (p *Pipeline) appendTurnMessage(ctx context.Context, msg domain.Message) (uint64, error) {
	var epoch uint64
	err := p.mutate(ctx, func(messages []domain.Message) ([]domain.Message, error) {
		epoch = p.epoch
		return appendUnique(messages, msg, p.nextID), nil
	})
	return epoch, err
}

func appendUnique(messages []domain.Message, msg domain.Message, nextID func() string) []domain.Message {
	if indexOf(messages, msg.ID) >= 0 {
		msg.ID = nextID()
	}
	next := make([]domain.Message, 0, len(messages)+1)
	next = append(next, messages...)
	return append(next, msg)
}

// mutate applies fn to the log and persists the result. The lock is held
// across the save so saves land in mutation order.
func (p *Pipeline) mutate(ctx context.Context, fn func([]domain.Message) ([]domain.Message, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := fn(p.messages)
	if err != nil {
		return err
	}
	p.messages = next
	snapshot := cloneMessages(next)

	if err := p.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
		p.logger.Warn("failed to save messages; keeping in-memory log", zap.Error(err))
		p.events.SessionError(domain.ErrorCodePersistence, err.Error())
	}

	p.events.MessagesChanged(snapshot)
	return nil
}

func (p *Pipeline) dispatchTriggers(ctx context.Context, text string) {
	if p.triggers == nil || p.launcher == nil {
		return
	}

	for _, action := range p.triggers.Match(text) {
		action := action
		launchCtx := context.WithoutCancel(ctx)
		go func() {
			if err := p.launcher.Launch(launchCtx, action); err != nil {
				metrics.TriggersTotal.WithLabelValues(string(action.Kind), "failed").Inc()
				p.logger.Warn("side-channel action failed", zap.String("action", string(action.Kind)), zap.Error(err))
				return
			}
			metrics.TriggersTotal.WithLabelValues(string(action.Kind), "ok").Inc()
		}()
	}
}

func (p *Pipeline) find(id string) (domain.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index := indexOf(p.messages, id)
	if index < 0 {
		return domain.Message{}, false
	}
	return p.messages[index], true
}

// turnSettings is the configuration a turn runs with, pinned at its start.
type turnSettings struct {
	PipelineConfig
	epoch uint64
}

func (p *Pipeline) snapshotSettings() turnSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return turnSettings{PipelineConfig: p.cfg, epoch: p.epoch}
}

func (p *Pipeline) nextID() string {
	return p.newID()
}

func (p *Pipeline) timestamp() string {
	return p.now().Format(timestampLayout)
}

func indexOf(messages []domain.Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}
