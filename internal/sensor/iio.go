// Package sensor reads accelerometer samples from the Linux IIO subsystem.
package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dixi/internal/domain"
	"dixi/internal/ports"
)

// DefaultRoot is where IIO devices are exposed.
const DefaultRoot = "/sys/bus/iio/devices"

const standardGravity = 9.80665

var ErrNoAccelerometer = errors.New("no accelerometer found")

// IIOAccelerometer polls an IIO accelerometer and reports samples in g.
type IIOAccelerometer struct {
	device string
	logger *zap.Logger
	now    func() time.Time
}

// NewIIOAccelerometer uses the device directory at path, or the first IIO
// device under DefaultRoot that exposes acceleration channels.
func NewIIOAccelerometer(path string, logger *zap.Logger) (*IIOAccelerometer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	device := strings.TrimSpace(path)
	if device == "" {
		found, err := FindAccelerometer(DefaultRoot)
		if err != nil {
			return nil, err
		}
		device = found
	}
	if !hasAccelChannels(device) {
		return nil, fmt.Errorf("%w at %s", ErrNoAccelerometer, device)
	}

	return &IIOAccelerometer{
		device: device,
		logger: logger.With(zap.String("device", device)),
		now:    time.Now,
	}, nil
}

// FindAccelerometer returns the first device under root with x/y/z channels.
func FindAccelerometer(root string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return "", err
	}
	for _, dir := range matches {
		if hasAccelChannels(dir) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w under %s", ErrNoAccelerometer, root)
}

// Subscribe starts polling at interval until the subscription is removed.
func (a *IIOAccelerometer) Subscribe(interval time.Duration, onReading func(domain.Reading)) (ports.Subscription, error) {
	if onReading == nil {
		return nil, errors.New("reading callback is required")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if _, err := a.Read(); err != nil {
		return nil, err
	}

	sub := &pollSubscription{done: make(chan struct{})}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		failing := false
		for {
			select {
			case <-sub.done:
				return
			case <-ticker.C:
			}

			reading, err := a.Read()
			if err != nil {
				if !failing {
					a.logger.Warn("accelerometer read failed", zap.Error(err))
					failing = true
				}
				continue
			}
			failing = false
			onReading(reading)
		}
	}()
	return sub, nil
}

// Read takes one sample.
func (a *IIOAccelerometer) Read() (domain.Reading, error) {
	var values [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(a.device, "in_accel_"+axis+"_raw"))
		if err != nil {
			return domain.Reading{}, err
		}
		scale, err := a.scale(axis)
		if err != nil {
			return domain.Reading{}, err
		}
		values[i] = raw * scale / standardGravity
	}
	return domain.Reading{X: values[0], Y: values[1], Z: values[2], At: a.now()}, nil
}

// scale prefers the per-axis scale and falls back to the shared one.
func (a *IIOAccelerometer) scale(axis string) (float64, error) {
	scale, err := readFloat(filepath.Join(a.device, "in_accel_"+axis+"_scale"))
	if err == nil {
		return scale, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	scale, err = readFloat(filepath.Join(a.device, "in_accel_scale"))
	if errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	return scale, err
}

type pollSubscription struct {
	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// Remove stops polling and waits for the poll goroutine to exit.
func (s *pollSubscription) Remove() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func hasAccelChannels(dir string) bool {
	for _, axis := range []string{"x", "y", "z"} {
		if _, err := os.Stat(filepath.Join(dir, "in_accel_"+axis+"_raw")); err != nil {
			return false
		}
	}
	return true
}

func readFloat(path string) (float64, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(string(contents)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value in %s: %w", path, err)
	}
	return value, nil
}
