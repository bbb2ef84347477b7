package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dixi/internal/domain"
	"dixi/internal/metrics"
	"dixi/internal/ports"
)

// RecorderConfig controls microphone capture.
type RecorderConfig struct {
	Audio ports.AudioConfig
}

// Recorder owns the microphone. At most one capture session exists at a time.
type Recorder struct {
	permissions ports.PermissionBroker
	backend     ports.RecordingBackend
	events      ports.EventSink
	logger      *zap.Logger
	cfg         RecorderConfig
	now         func() time.Time

	mu        sync.Mutex
	state     domain.RecordingState
	starting  bool
	current   ports.CaptureSession
	startedAt time.Time
}

func NewRecorder(
	permissions ports.PermissionBroker,
	backend ports.RecordingBackend,
	events ports.EventSink,
	logger *zap.Logger,
	cfg RecorderConfig,
) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		permissions: permissions,
		backend:     backend,
		events:      events,
		logger:      logger.Named("recorder"),
		cfg:         cfg,
		now:         time.Now,
		state:       domain.RecordingStateIdle,
	}
}

// Start opens a new capture session. A second Start while recording is rejected.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.starting || r.current != nil {
		r.mu.Unlock()
		return domain.ErrRecordingInProgress
	}
	r.starting = true
	r.mu.Unlock()

	granted, err := r.permissions.RequestMicrophone(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err))
	}
	if !granted {
		return r.fail(domain.ErrPermissionDenied)
	}

	session, err := r.backend.Start(ctx, r.cfg.Audio)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", domain.ErrRecording, err))
	}

	r.mu.Lock()
	r.starting = false
	r.current = session
	r.state = domain.RecordingStateRecording
	r.startedAt = r.now()
	r.mu.Unlock()

	metrics.Recording.Set(1)
	r.logger.Debug("recording started")
	r.events.RecordingStateChanged(domain.RecordingStateRecording)
	return nil
}

// Stop finalizes the active capture and returns its clip handle. It is a
// no-op returning "" when nothing is being recorded.
func (r *Recorder) Stop(_ context.Context) (string, error) {
	session := r.take()
	if session == nil {
		return "", nil
	}

	clip, err := session.Stop()
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrRecording, err)
		r.finish(domain.RecordingStateError, "error")
		r.logger.Warn("recording failed", zap.Error(err))
		r.events.SessionError(domain.ErrorCodeRecording, err.Error())
		return "", err
	}

	r.finish(domain.RecordingStateStopped, "stopped")
	r.logger.Debug("recording stopped", zap.String("clip", clip))
	return clip, nil
}

// Abort discards an in-progress capture without producing a clip.
func (r *Recorder) Abort() error {
	session := r.take()
	if session == nil {
		return domain.ErrNoActiveSession
	}

	if err := session.Abort(); err != nil {
		r.logger.Warn("failed to abort capture cleanly", zap.Error(err))
	}
	r.finish(domain.RecordingStateIdle, "aborted")
	return nil
}

// State returns the current recorder state.
func (r *Recorder) State() domain.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Recording reports whether a capture is active or being started.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starting || r.current != nil
}

// Elapsed is how long the active capture has been running.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.now().Sub(r.startedAt)
}

// Status returns a UI snapshot of the recorder.
func (r *Recorder) Status() domain.RecorderStatus {
	return domain.RecorderStatus{State: r.State(), ElapsedMS: r.Elapsed().Milliseconds()}
}

func (r *Recorder) take() ports.CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.current
	r.current = nil
	return session
}

func (r *Recorder) finish(state domain.RecordingState, outcome string) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	metrics.Recording.Set(0)
	metrics.RecordingsTotal.WithLabelValues(outcome).Inc()
	r.events.RecordingStateChanged(state)
}

func (r *Recorder) fail(err error) error {
	r.mu.Lock()
	r.starting = false
	r.state = domain.RecordingStateError
	r.mu.Unlock()

	metrics.RecordingsTotal.WithLabelValues("failed").Inc()
	r.logger.Warn("recording could not start", zap.Error(err))
	r.events.RecordingStateChanged(domain.RecordingStateError)
	r.events.SessionError(domain.CodeFor(err), err.Error())
	return err
}
