// Package openai implements transcription, completion and translation on top
// of the OpenAI HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dixi/internal/domain"
)

// Config controls the OpenAI client.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	MaxTokens          int
	Timeout            time.Duration
	// SystemPrompt is prepended to assistant completions when set.
	SystemPrompt string
}

// Client talks to the OpenAI API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-3.5-turbo"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads the clip to the speech-to-text endpoint.
func (c *Client) Transcribe(ctx context.Context, clip string, languageHint string) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}

	file, err := os.Open(clip)
	if err != nil {
		return "", fmt.Errorf("failed to open clip: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(clip))
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read clip: %w", err)
	}
	if err := form.WriteField("model", c.cfg.TranscriptionModel); err != nil {
		return "", err
	}
	if hint := strings.TrimSpace(languageHint); hint != "" {
		if err := form.WriteField("language", hint); err != nil {
			return "", err
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	var result transcriptionResponse
	if err := c.do(httpReq, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}

// Complete asks the chat model for a short reply.
func (c *Client) Complete(ctx context.Context, text string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if prompt := strings.TrimSpace(c.cfg.SystemPrompt); prompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})
	return c.chat(ctx, chatRequest{
		Model:     c.cfg.ChatModel,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	})
}

// Translate asks the chat model for a literal translation between two
// supported languages.
func (c *Client) Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error) {
	if !domain.SupportedLanguage(sourceLang) || !domain.SupportedLanguage(targetLang) {
		return "", fmt.Errorf("%w: %s -> %s", domain.ErrUnsupportedLanguage, sourceLang, targetLang)
	}

	zero := 0.0
	prompt := fmt.Sprintf(
		"Translate the user's message from %s to %s. Reply with the translation only, without quotes or notes.",
		domain.LanguageName(sourceLang),
		domain.LanguageName(targetLang),
	)
	return c.chat(ctx, chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   c.cfg.MaxTokens * 4,
		Temperature: &zero,
	})
}

func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var result chatResponse
	if err := c.do(httpReq, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *Client) do(httpReq *http.Request, out any) error {
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("openai error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return fmt.Errorf("openai error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) requireKey() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("OPENAI_API_KEY is not configured")
	}
	return nil
}
