package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"dixi/internal/ports"
)

var errHandleUnloaded = errors.New("clip handle is unloaded")

// FFPlayBackend plays recorded clips through ffplay.
type FFPlayBackend struct {
	command string
}

func NewFFPlayBackend(command string) *FFPlayBackend {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayBackend{command: command}
}

// Load checks the clip exists. The decoder process is started by the first
// Play so a loaded handle costs nothing until it is heard.
func (b *FFPlayBackend) Load(ctx context.Context, uri string, onFinish func(error)) (ports.PlayableHandle, error) {
	if _, err := os.Stat(uri); err != nil {
		return nil, fmt.Errorf("failed to load clip: %w", err)
	}
	return &ffplayHandle{
		ctx:      context.WithoutCancel(ctx),
		command:  b.command,
		uri:      uri,
		onFinish: onFinish,
	}, nil
}

type ffplayHandle struct {
	ctx      context.Context
	command  string
	uri      string
	onFinish func(error)

	mu       sync.Mutex
	process  *os.Process
	paused   bool
	halted   bool
	unloaded bool
}

func (h *ffplayHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unloaded {
		return errHandleUnloaded
	}
	if h.process != nil {
		if !h.paused {
			return nil
		}
		if err := resumeProcess(h.process); err != nil {
			return fmt.Errorf("failed to resume ffplay: %w", err)
		}
		h.paused = false
		return nil
	}

	cmd := exec.CommandContext(h.ctx, h.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		h.uri,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}
	h.process = cmd.Process
	h.halted = false

	go h.wait(cmd, &stderr)
	return nil
}

func (h *ffplayHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unloaded {
		return errHandleUnloaded
	}
	if h.process == nil || h.paused {
		return nil
	}
	if err := pauseProcess(h.process); err != nil {
		return fmt.Errorf("failed to pause ffplay: %w", err)
	}
	h.paused = true
	return nil
}

func (h *ffplayHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.haltLocked()
}

func (h *ffplayHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.haltLocked()
	h.unloaded = true
	return err
}

func (h *ffplayHandle) haltLocked() error {
	if h.process == nil {
		return nil
	}
	process := h.process
	h.process = nil
	h.halted = true
	if h.paused {
		_ = resumeProcess(process)
		h.paused = false
	}
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *ffplayHandle) wait(cmd *exec.Cmd, stderr *bytes.Buffer) {
	err := cmd.Wait()

	h.mu.Lock()
	halted := h.halted || h.process != cmd.Process
	if !halted {
		h.process = nil
		h.paused = false
	}
	h.mu.Unlock()

	if halted || h.onFinish == nil {
		return
	}
	if err != nil {
		h.onFinish(fmt.Errorf("ffplay failed: %w: %s", err, stringsTrimSpaceSafe(stderr.String())))
		return
	}
	h.onFinish(nil)
}
