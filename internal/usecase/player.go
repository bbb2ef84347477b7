package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dixi/internal/domain"
	"dixi/internal/metrics"
	"dixi/internal/ports"
)

// PlayerConfig controls playback.
type PlayerConfig struct {
	DefaultLocale string
}

// Player owns the audio output. Recorded clips and synthesized speech share a
// single playback session keyed by message id.
type Player struct {
	recorded ports.RecordedAudioBackend
	speech   ports.SpeechSynthesisBackend
	events   ports.EventSink
	logger   *zap.Logger
	cfg      PlayerConfig

	// opMu serializes operations; a target switch finishes quiescing the old
	// backend before the new one is engaged. Backend callbacks only take mu.
	opMu sync.Mutex

	mu           sync.Mutex
	generation   uint64
	activeID     string
	backend      domain.PlaybackBackend
	state        domain.PlaybackState
	handle       ports.PlayableHandle
	resumeText   string
	resumeLocale string
}

func NewPlayer(
	recorded ports.RecordedAudioBackend,
	speech ports.SpeechSynthesisBackend,
	events ports.EventSink,
	logger *zap.Logger,
	cfg PlayerConfig,
) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = domain.DefaultSpeechLocale
	}
	return &Player{
		recorded: recorded,
		speech:   speech,
		events:   events,
		logger:   logger.Named("player"),
		cfg:      cfg,
		state:    domain.PlaybackStateStopped,
	}
}

// PlayAudio plays, pauses or resumes a message depending on its body and on
// whether it is already the active target.
func (p *Player) PlayAudio(ctx context.Context, msg domain.Message) {
	switch body := msg.Body.(type) {
	case domain.AudioBody:
		p.PlayRecordedAudio(ctx, body.Handle, msg.ID)
	case domain.TextBody, domain.TranslationBody:
		p.PlaySynthesizedSpeech(ctx, msg.SpeechText(), msg.ID, msg)
	default:
		p.logger.Warn("message has nothing to play", zap.String("message", msg.ID))
	}
}

// PlayRecordedAudio toggles pause on the active clip or replaces the active
// target with a freshly loaded clip.
func (p *Player) PlayRecordedAudio(ctx context.Context, uri string, id string) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.activeID == id && p.handle != nil {
		handle := p.handle
		playing := p.state == domain.PlaybackStatePlaying
		gen := p.generation
		p.mu.Unlock()
		p.toggleRecorded(gen, handle, playing)
		return
	}
	p.mu.Unlock()

	p.stopActive()

	gen := p.begin(id, domain.PlaybackBackendRecordedAudio)
	logger := p.logger.With(zap.String("message", id))

	handle, err := p.recorded.Load(ctx, uri, func(err error) {
		if err != nil {
			p.absorb(domain.PlaybackBackendRecordedAudio, err)
		}
		p.finish(gen)
	})
	if err != nil {
		p.absorb(domain.PlaybackBackendRecordedAudio, err)
		p.finish(gen)
		return
	}

	if err := handle.Play(); err != nil {
		p.absorb(domain.PlaybackBackendRecordedAudio, err)
		releaseHandle(logger, handle)
		p.finish(gen)
		return
	}

	p.mu.Lock()
	stale := p.generation != gen
	if !stale {
		p.handle = handle
	}
	p.mu.Unlock()

	if stale {
		// Finished before it could be registered.
		releaseHandle(logger, handle)
		return
	}
	metrics.PlaybackSessionsTotal.WithLabelValues(string(domain.PlaybackBackendRecordedAudio)).Inc()
	p.emit()
}

// PlaySynthesizedSpeech pauses or resumes speech for the active message, or
// starts speaking text for a new one.
func (p *Player) PlaySynthesizedSpeech(ctx context.Context, text string, id string, msg domain.Message) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.activeID == id && p.backend == domain.PlaybackBackendSpeechSynthesis {
		switch p.state {
		case domain.PlaybackStatePlaying:
			p.generation++
			p.state = domain.PlaybackStatePaused
			p.resumeText = text
			p.mu.Unlock()

			if err := p.speech.Stop(); err != nil {
				p.absorb(domain.PlaybackBackendSpeechSynthesis, err)
				p.stopActive()
				return
			}
			p.emit()
			return
		case domain.PlaybackStatePaused:
			p.generation++
			gen := p.generation
			p.state = domain.PlaybackStatePlaying
			resumeText, locale := p.resumeText, p.resumeLocale
			p.mu.Unlock()

			p.speak(ctx, gen, resumeText, locale)
			return
		}
	}
	p.mu.Unlock()

	p.stopActive()

	locale := p.localeFor(msg)
	gen := p.begin(id, domain.PlaybackBackendSpeechSynthesis)

	p.mu.Lock()
	p.resumeText = text
	p.resumeLocale = locale
	p.mu.Unlock()

	metrics.PlaybackSessionsTotal.WithLabelValues(string(domain.PlaybackBackendSpeechSynthesis)).Inc()
	p.speak(ctx, gen, text, locale)
}

// StopCurrentAudio halts whichever backend is active. Safe to call when idle.
func (p *Player) StopCurrentAudio(_ context.Context) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopActive()
}

// ActiveMessageID returns the id of the current playback target, if any.
func (p *Player) ActiveMessageID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeID
}

// Status returns a snapshot of the playback session.
func (p *Player) Status() domain.PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Player) statusLocked() domain.PlaybackStatus {
	return domain.PlaybackStatus{ActiveMessageID: p.activeID, Backend: p.backend, State: p.state}
}

func (p *Player) toggleRecorded(gen uint64, handle ports.PlayableHandle, playing bool) {
	var err error
	next := domain.PlaybackStatePlaying
	if playing {
		err = handle.Pause()
		next = domain.PlaybackStatePaused
	} else {
		err = handle.Play()
	}
	if err != nil {
		p.absorb(domain.PlaybackBackendRecordedAudio, err)
		p.stopActive()
		return
	}

	p.mu.Lock()
	changed := p.generation == gen
	if changed {
		p.state = next
	}
	p.mu.Unlock()

	if changed {
		p.emit()
	}
}

func (p *Player) speak(ctx context.Context, gen uint64, text string, locale string) {
	err := p.speech.Speak(ctx, text, locale,
		func() { p.finish(gen) },
		func(err error) {
			p.absorb(domain.PlaybackBackendSpeechSynthesis, err)
			p.finish(gen)
		},
	)
	if err != nil {
		p.absorb(domain.PlaybackBackendSpeechSynthesis, err)
		p.finish(gen)
		return
	}
	p.emit()
}

func (p *Player) begin(id string, backend domain.PlaybackBackend) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.activeID = id
	p.backend = backend
	p.state = domain.PlaybackStatePlaying
	return p.generation
}

// finish clears the session if gen is still current. It is the shared exit
// path for natural completion and absorbed backend errors.
func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	handle := p.clearLocked()
	p.mu.Unlock()

	if handle != nil {
		if err := handle.Unload(); err != nil {
			p.logger.Debug("failed to unload finished clip", zap.Error(err))
		}
	}
	p.emit()
}

// stopActive must be called with opMu held.
func (p *Player) stopActive() {
	p.mu.Lock()
	active := p.activeID != "" || p.handle != nil || p.state != domain.PlaybackStateStopped
	speaking := p.backend == domain.PlaybackBackendSpeechSynthesis && p.state == domain.PlaybackStatePlaying
	handle := p.clearLocked()
	p.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(); err != nil {
			p.logger.Debug("failed to stop clip", zap.Error(err))
		}
		if err := handle.Unload(); err != nil {
			p.logger.Debug("failed to unload clip", zap.Error(err))
		}
	}
	if speaking {
		if err := p.speech.Stop(); err != nil {
			p.logger.Debug("failed to stop speech", zap.Error(err))
		}
	}
	if active {
		p.emit()
	}
}

func (p *Player) clearLocked() ports.PlayableHandle {
	handle := p.handle
	p.generation++
	p.handle = nil
	p.activeID = ""
	p.backend = domain.PlaybackBackendNone
	p.state = domain.PlaybackStateStopped
	p.resumeText = ""
	p.resumeLocale = ""
	return handle
}

func (p *Player) localeFor(msg domain.Message) string {
	if body, ok := msg.Body.(domain.TranslationBody); ok {
		if locale, found := domain.SpeechLocale(body.TargetLang); found {
			return locale
		}
	}
	return p.cfg.DefaultLocale
}

func (p *Player) absorb(backend domain.PlaybackBackend, err error) {
	metrics.PlaybackErrorsTotal.WithLabelValues(string(backend)).Inc()
	p.logger.Warn("playback failed", zap.String("backend", string(backend)), zap.Error(fmt.Errorf("%w: %w", domain.ErrPlayback, err)))
}

func (p *Player) emit() {
	p.events.PlaybackChanged(p.Status())
}

func releaseHandle(logger *zap.Logger, handle ports.PlayableHandle) {
	if err := handle.Stop(); err != nil {
		logger.Debug("failed to stop clip", zap.Error(err))
	}
	if err := handle.Unload(); err != nil {
		logger.Debug("failed to unload clip", zap.Error(err))
	}
}
