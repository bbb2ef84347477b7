package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"dixi/internal/domain"
	"dixi/internal/metrics"
	"dixi/internal/ports"
)

// ShakeConfig controls shake-to-record.
type ShakeConfig struct {
	Threshold float64
	Debounce  time.Duration
	AutoStop  time.Duration
	Interval  time.Duration
}

// DefaultShakeConfig matches the gesture tuning the app shipped with.
func DefaultShakeConfig() ShakeConfig {
	return ShakeConfig{
		Threshold: 2,
		Debounce:  time.Second,
		AutoStop:  5 * time.Second,
		Interval:  100 * time.Millisecond,
	}
}

type recorderControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	Recording() bool
}

type turnRunner interface {
	Busy() bool
	ProcessAudioMessage(ctx context.Context, clip string) error
}

type stoppable interface {
	Stop() bool
}

// ShakeTrigger starts a recording turn when the device is shaken and stops it
// after a fixed delay unless the user stops it first.
type ShakeTrigger struct {
	sensor    ports.MotionSensor
	recorder  recorderControl
	pipeline  turnRunner
	logger    *zap.Logger
	cfg       ShakeConfig
	now       func() time.Time
	afterFunc func(time.Duration, func()) stoppable

	mu        sync.Mutex
	ctx       context.Context
	sub       ports.Subscription
	seeded    bool
	lastSum   float64
	lastShake time.Time
	autoStop  stoppable
	armed     uint64
}

func NewShakeTrigger(
	sensor ports.MotionSensor,
	recorder recorderControl,
	pipeline turnRunner,
	logger *zap.Logger,
	cfg ShakeConfig,
) *ShakeTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultShakeConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.AutoStop <= 0 {
		cfg.AutoStop = defaults.AutoStop
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	return &ShakeTrigger{
		sensor:   sensor,
		recorder: recorder,
		pipeline: pipeline,
		logger:   logger.Named("shake"),
		cfg:      cfg,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) stoppable {
			return time.AfterFunc(d, f)
		},
		ctx: context.Background(),
	}
}

// Start subscribes to the motion sensor. Calling it twice is a no-op.
func (t *ShakeTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return nil
	}

	sub, err := t.sensor.Subscribe(t.cfg.Interval, t.OnReading)
	if err != nil {
		return err
	}
	t.ctx = ctx
	t.sub = sub
	t.logger.Info("shake detection started", zap.Duration("interval", t.cfg.Interval))
	return nil
}

// Close removes the sensor subscription and disarms the auto-stop timer.
func (t *ShakeTrigger) Close() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.seeded = false
	t.disarmLocked()
	t.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
}

// OnReading feeds one accelerometer sample into the detector.
func (t *ShakeTrigger) OnReading(reading domain.Reading) {
	at := reading.At
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	sum := reading.Sum()
	if !t.seeded {
		t.seeded = true
		t.lastSum = sum
		t.mu.Unlock()
		return
	}

	movement := math.Abs(sum - t.lastSum)
	t.lastSum = sum
	if movement <= t.cfg.Threshold || at.Sub(t.lastShake) <= t.cfg.Debounce {
		t.mu.Unlock()
		return
	}
	t.lastShake = at
	ctx := t.ctx
	t.mu.Unlock()

	t.logger.Debug("shake detected", zap.Float64("movement", movement))
	t.OnShake(ctx)
}

// OnShake starts a recording with an auto-stop timer unless a recording or a
// turn is already in progress.
func (t *ShakeTrigger) OnShake(ctx context.Context) {
	if t.recorder.Recording() || t.pipeline.Busy() {
		metrics.ShakesTotal.WithLabelValues("ignored").Inc()
		return
	}

	if err := t.recorder.Start(ctx); err != nil {
		metrics.ShakesTotal.WithLabelValues("failed").Inc()
		t.logger.Warn("shake could not start recording", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.disarmLocked()
	t.armed++
	gen := t.armed
	t.autoStop = t.afterFunc(t.cfg.AutoStop, func() { t.fireAutoStop(ctx, gen) })
	t.mu.Unlock()

	metrics.ShakesTotal.WithLabelValues("recording").Inc()
}

// CancelAutoStop disarms a pending auto-stop. The manual stop path calls it
// before stopping the recorder.
func (t *ShakeTrigger) CancelAutoStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *ShakeTrigger) fireAutoStop(ctx context.Context, gen uint64) {
	t.mu.Lock()
	if t.armed != gen || t.autoStop == nil {
		t.mu.Unlock()
		return
	}
	t.autoStop = nil
	t.mu.Unlock()

	clip, err := t.recorder.Stop(ctx)
	if err != nil || clip == "" {
		return
	}
	if err := t.pipeline.ProcessAudioMessage(ctx, clip); err != nil {
		t.logger.Warn("shake turn failed", zap.Error(err))
	}
}

func (t *ShakeTrigger) disarmLocked() {
	t.armed++
	if t.autoStop != nil {
		t.autoStop.Stop()
		t.autoStop = nil
	}
}
