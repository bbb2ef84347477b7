package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dixi/internal/domain"
	"dixi/internal/metrics"
	"dixi/internal/ports"
)

// replyRequest is everything the reply step needs for one turn.
type replyRequest struct {
	text       string
	mode       domain.ChatMode
	sourceLang string
	targetLang string
	id         string
	timestamp  string
}

// responder turns user text into the assistant or translation message.
type responder struct {
	completion  ports.CompletionClient
	translation ports.TranslationClient
}

func newResponder(completion ports.CompletionClient, translation ports.TranslationClient) responder {
	return responder{completion: completion, translation: translation}
}

func (r responder) Respond(ctx context.Context, req replyRequest) (domain.Message, error) {
	switch req.mode {
	case domain.ChatModeTranslator:
		started := time.Now()
		translated, err := r.translation.Translate(ctx, req.text, req.sourceLang, req.targetLang)
		metrics.StageLatency.WithLabelValues("translate").Observe(float64(time.Since(started).Milliseconds()))
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrTranslation, err)
		}
		translated = strings.TrimSpace(translated)
		if translated == "" {
			return domain.Message{}, fmt.Errorf("%w: empty translation", domain.ErrTranslation)
		}
		return domain.NewTranslation(req.id, req.text, translated, req.sourceLang, req.targetLang, req.timestamp), nil
	case domain.ChatModeAssistant:
		started := time.Now()
		reply, err := r.completion.Complete(ctx, req.text)
		metrics.StageLatency.WithLabelValues("complete").Observe(float64(time.Since(started).Milliseconds()))
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrCompletion, err)
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return domain.Message{}, fmt.Errorf("%w: empty reply", domain.ErrCompletion)
		}
		return domain.NewAssistantText(req.id, reply, req.timestamp), nil
	default:
		return domain.Message{}, fmt.Errorf("unknown chat mode %q", req.mode)
	}
}
