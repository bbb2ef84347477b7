package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var espeakVoices = map[string]string{
	"es-es": "es",
	"es":    "es",
	"pt-br": "pt-br",
	"pt-pt": "pt",
	"pt":    "pt-br",
	"en-us": "en-us",
	"en-gb": "en-gb",
	"en":    "en-us",
}

// EspeakSpeech synthesizes speech with espeak-ng. Only one utterance is
// spoken at a time; a new Speak interrupts the previous one.
type EspeakSpeech struct {
	command string

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	process *os.Process
	stopped bool
}

func NewEspeakSpeech(command string) *EspeakSpeech {
	if command == "" {
		command = "espeak-ng"
	}
	return &EspeakSpeech{command: command}
}

func (s *EspeakSpeech) Speak(ctx context.Context, text string, locale string, onDone func(), onError func(error)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("nothing to speak")
	}

	if err := s.Stop(); err != nil {
		return err
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), s.command, "-v", espeakVoice(locale))
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.command, err)
	}

	current := &utterance{process: cmd.Process}
	s.mu.Lock()
	s.current = current
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()

		s.mu.Lock()
		stopped := current.stopped
		if s.current == current {
			s.current = nil
		}
		s.mu.Unlock()

		if stopped {
			return
		}
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("speech synthesis failed: %w: %s", err, stringsTrimSpaceSafe(stderr.String())))
			}
			return
		}
		if onDone != nil {
			onDone()
		}
	}()
	return nil
}

// Stop silences the current utterance without firing its callbacks.
func (s *EspeakSpeech) Stop() error {
	s.mu.Lock()
	current := s.current
	s.current = nil
	if current != nil {
		current.stopped = true
	}
	s.mu.Unlock()

	if current == nil {
		return nil
	}
	if err := current.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func espeakVoice(locale string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if voice, ok := espeakVoices[key]; ok {
		return voice
	}
	if lang, _, found := strings.Cut(key, "-"); found {
		if voice, ok := espeakVoices[lang]; ok {
			return voice
		}
	}
	return "es"
}
