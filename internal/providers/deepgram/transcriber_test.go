package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeListenServer struct {
	server   *httptest.Server
	query    chan string
	auth     chan string
	received chan []byte
}

func newFakeListenServer(t *testing.T, replies []string) *fakeListenServer {
	t.Helper()
	f := &fakeListenServer{
		query:    make(chan string, 1),
		auth:     make(chan string, 1),
		received: make(chan []byte, 1),
	}
	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.query <- r.URL.RawQuery
		f.auth <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var audio []byte
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType == websocket.TextMessage {
				break
			}
			audio = append(audio, data...)
		}
		f.received <- audio

		for _, reply := range replies {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func writeClip(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.m4a")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write clip: %v", err)
	}
	return path
}

func TestTranscriberStreamsClipAndJoinsFinals(t *testing.T) {
	t.Parallel()

	server := newFakeListenServer(t, []string{
		`{"type":"Metadata"}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hola"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"mundo"}]}}`,
	})
	clip := writeClip(t, strings.Repeat("a", 1000))

	transcriber := NewTranscriber(Config{APIKey: "dg-test", APIBaseURL: server.server.URL + "/v1", ChunkSize: 300, Timeout: 5 * time.Second})
	text, err := transcriber.Transcribe(context.Background(), clip, "pt")
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hola mundo" {
		t.Fatalf("unexpected transcript: %q", text)
	}

	if got := <-server.received; len(got) != 1000 {
		t.Fatalf("expected whole clip to be streamed, got %d bytes", len(got))
	}
	if got := <-server.auth; got != "Token dg-test" {
		t.Fatalf("unexpected auth header: %q", got)
	}
	query := <-server.query
	if !strings.Contains(query, "language=pt") || !strings.Contains(query, "model=nova-2") {
		t.Fatalf("unexpected query: %s", query)
	}
	if strings.Contains(query, "encoding=") {
		t.Fatalf("containerized clips must not force an encoding: %s", query)
	}
}

func TestTranscriberProviderError(t *testing.T) {
	t.Parallel()

	server := newFakeListenServer(t, []string{`{"type":"Error","message":"invalid audio"}`})
	transcriber := NewTranscriber(Config{APIKey: "dg-test", APIBaseURL: server.server.URL, Timeout: 5 * time.Second})

	_, err := transcriber.Transcribe(context.Background(), writeClip(t, "abc"), "es")
	if err == nil || err.Error() != "invalid audio" {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTranscriberRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriber(Config{}).Transcribe(context.Background(), "clip", "es")
	if err == nil || !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestTranscriberMissingClip(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriber(Config{APIKey: "k"}).Transcribe(context.Background(), filepath.Join(t.TempDir(), "none"), "es")
	if err == nil {
		t.Fatalf("expected missing clip error")
	}
}

func TestNewTranscriberDefaults(t *testing.T) {
	t.Parallel()

	tr := NewTranscriber(Config{})
	if tr.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", tr.cfg.APIBaseURL)
	}
	if tr.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", tr.cfg.Model)
	}
	if tr.cfg.ChunkSize != 8192 {
		t.Fatalf("unexpected chunk size: %d", tr.cfg.ChunkSize)
	}
}

func TestBuildListenURL(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2", Language: "es"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "wss://api.deepgram.com/v1/listen?") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "language=es") {
		t.Fatalf("expected configured language fallback: %s", url)
	}

	url, err = buildListenURL(Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", SmartFormat: true}, "pt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "ws://localhost:8080/v1/listen?") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "language=pt") || !strings.Contains(url, "smart_format=true") {
		t.Fatalf("unexpected query: %s", url)
	}

	if _, err := buildListenURL(Config{APIBaseURL: ":// bad"}, ""); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	r1 := deepgramResponse{}
	r1.Channel.Alternatives = append(r1.Channel.Alternatives, struct {
		Transcript string "json:\"transcript\""
	}{Transcript: " channel "})
	if got := extractTranscript(r1); got != "channel" {
		t.Fatalf("unexpected transcript from channel: %q", got)
	}

	if got := extractTranscript(deepgramResponse{}); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestClipSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &clipSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("boom"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("expected first error to win, got %v", s.waitErr())
	}
}

func TestTranscriptAggregator(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	a.Add("hola", false)
	if got := a.Raw(); got != "hola" {
		t.Fatalf("expected interim fallback, got %q", got)
	}

	a.Add("hola mundo", true)
	a.Add("  ", true)
	a.Add("qué tal", true)
	if got := a.Raw(); got != "hola mundo qué tal" {
		t.Fatalf("unexpected joined transcript: %q", got)
	}

	b := newTranscriptAggregator()
	b.Add("uno", true)
	b.Add("uno dos tres cuatro", false)
	if got := b.Raw(); got != "uno uno dos tres cuatro" {
		t.Fatalf("expected longer interim tail to be appended, got %q", got)
	}
}
