package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"dixi/internal/domain"
	"dixi/internal/ports"
)

type fakePermissions struct {
	granted bool
	err     error
	calls   int
}

func (f *fakePermissions) RequestMicrophone(_ context.Context) (bool, error) {
	f.calls++
	return f.granted, f.err
}

type fakeRecordingBackend struct {
	mu       sync.Mutex
	sessions []*fakeCapture
	err      error
	calls    int
}

func (f *fakeRecordingBackend) Start(_ context.Context, _ ports.AudioConfig) (ports.CaptureSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no capture session configured")
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

func (f *fakeRecordingBackend) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCapture struct {
	clip       string
	stopErr    error
	stopCalls  int
	abortCalls int
}

func (f *fakeCapture) Stop() (string, error) {
	f.stopCalls++
	if f.stopErr != nil {
		return "", f.stopErr
	}
	return f.clip, nil
}

func (f *fakeCapture) Abort() error {
	f.abortCalls++
	return nil
}

// playerLog records backend calls in order across both playback backends.
type playerLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *playerLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *playerLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type fakeRecordedBackend struct {
	log       *playerLog
	mu        sync.Mutex
	loadErr   error
	playErr   error
	handles   map[string]*fakeHandle
	finishers map[string]func(error)
	loads     int
}

func newFakeRecordedBackend(log *playerLog) *fakeRecordedBackend {
	return &fakeRecordedBackend{
		log:       log,
		handles:   map[string]*fakeHandle{},
		finishers: map[string]func(error){},
	}
}

func (f *fakeRecordedBackend) Load(_ context.Context, uri string, onFinish func(error)) (ports.PlayableHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	f.log.add("load:" + uri)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	handle := &fakeHandle{uri: uri, log: f.log, playErr: f.playErr}
	f.handles[uri] = handle
	f.finishers[uri] = onFinish
	return handle, nil
}

func (f *fakeRecordedBackend) finish(uri string, err error) {
	f.mu.Lock()
	onFinish := f.finishers[uri]
	f.mu.Unlock()
	if onFinish != nil {
		onFinish(err)
	}
}

func (f *fakeRecordedBackend) handle(uri string) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[uri]
}

func (f *fakeRecordedBackend) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type fakeHandle struct {
	uri     string
	log     *playerLog
	playErr error

	mu       sync.Mutex
	playing  bool
	unloaded bool
	plays    int
	pauses   int
}

func (h *fakeHandle) Play() error {
	h.log.add("play:" + h.uri)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playErr != nil {
		return h.playErr
	}
	h.plays++
	h.playing = true
	return nil
}

func (h *fakeHandle) Pause() error {
	h.log.add("pause:" + h.uri)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	h.playing = false
	return nil
}

func (h *fakeHandle) Stop() error {
	h.log.add("stop:" + h.uri)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *fakeHandle) Unload() error {
	h.log.add("unload:" + h.uri)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloaded = true
	return nil
}

func (h *fakeHandle) isPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

type fakeSpeech struct {
	log      *playerLog
	mu       sync.Mutex
	speakErr error
	speaking bool
	texts    []string
	locales  []string
	onDone   func()
	onError  func(error)
}

func (f *fakeSpeech) Speak(_ context.Context, text string, locale string, onDone func(), onError func(error)) error {
	f.log.add("speak:" + text)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speakErr != nil {
		return f.speakErr
	}
	f.speaking = true
	f.texts = append(f.texts, text)
	f.locales = append(f.locales, locale)
	f.onDone = onDone
	f.onError = onError
	return nil
}

func (f *fakeSpeech) Stop() error {
	f.log.add("speech-stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaking = false
	return nil
}

func (f *fakeSpeech) isSpeaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

func (f *fakeSpeech) lastLocale() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.locales) == 0 {
		return ""
	}
	return f.locales[len(f.locales)-1]
}

func (f *fakeSpeech) done() {
	f.mu.Lock()
	f.speaking = false
	onDone := f.onDone
	f.mu.Unlock()
	if onDone != nil {
		onDone()
	}
}

func (f *fakeSpeech) fail(err error) {
	f.mu.Lock()
	f.speaking = false
	onError := f.onError
	f.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	hints []string
	block chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string, hint string) (string, error) {
	f.mu.Lock()
	f.hints = append(f.hints, hint)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeCompletion struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompletion) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeTranslation struct {
	reply  string
	err    error
	source string
	target string
}

func (f *fakeTranslation) Translate(_ context.Context, _ string, source string, target string) (string, error) {
	f.source = source
	f.target = target
	return f.reply, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	saved   [][]domain.Message
	loaded  []domain.Message
	loadErr error
	saveErr error
}

func (f *fakeStore) Load(_ context.Context) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded, f.loadErr
}

func (f *fakeStore) Save(_ context.Context, messages []domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, messages)
	return f.saveErr
}

func (f *fakeStore) saves() [][]domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]domain.Message, len(f.saved))
	copy(out, f.saved)
	return out
}

type fakePlayback struct {
	active string
	stops  int
}

func (f *fakePlayback) ActiveMessageID() string { return f.active }

func (f *fakePlayback) StopCurrentAudio(_ context.Context) {
	f.stops++
	f.active = ""
}

type keywordMatcher struct {
	keyword string
	action  ports.Action
}

func (m keywordMatcher) Match(text string) []ports.Action {
	if text == m.keyword {
		return []ports.Action{m.action}
	}
	return nil
}

type fakeLauncher struct {
	mu      sync.Mutex
	actions []ports.Action
	err     error
}

func (f *fakeLauncher) Launch(_ context.Context, action ports.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return f.err
}

func (f *fakeLauncher) launched() []ports.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.Action, len(f.actions))
	copy(out, f.actions)
	return out
}

type errorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu         sync.Mutex
	recording  []domain.RecordingState
	processing []bool
	messages   [][]domain.Message
	playback   []domain.PlaybackStatus
	errors     []errorEvent
}

func (f *fakeEventSink) RecordingStateChanged(state domain.RecordingState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = append(f.recording, state)
}

func (f *fakeEventSink) ProcessingChanged(processing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = append(f.processing, processing)
}

func (f *fakeEventSink) MessagesChanged(messages []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
}

func (f *fakeEventSink) PlaybackChanged(status domain.PlaybackStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = append(f.playback, status)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errorEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotRecording() []domain.RecordingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RecordingState, len(f.recording))
	copy(out, f.recording)
	return out
}

func (f *fakeEventSink) snapshotProcessing() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.processing))
	copy(out, f.processing)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errorEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) playbackEvents() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playback)
}

type fakeSensor struct {
	interval  time.Duration
	onReading func(domain.Reading)
	removed   int
	err       error
}

func (f *fakeSensor) Subscribe(interval time.Duration, onReading func(domain.Reading)) (ports.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.interval = interval
	f.onReading = onReading
	return fakeSubscription{sensor: f}, nil
}

type fakeSubscription struct {
	sensor *fakeSensor
}

func (s fakeSubscription) Remove() { s.sensor.removed++ }

type fakeRecorder struct {
	mu        sync.Mutex
	recording bool
	starts    int
	stops     int
	clip      string
	startErr  error
}

func (f *fakeRecorder) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = true
	return nil
}

func (f *fakeRecorder) Stop(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return "", nil
	}
	f.stops++
	f.recording = false
	return f.clip, nil
}

func (f *fakeRecorder) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

type fakeTurns struct {
	mu    sync.Mutex
	busy  bool
	clips []string
}

func (f *fakeTurns) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeTurns) ProcessAudioMessage(_ context.Context, clip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	return nil
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeClock hands out fake timers and fires them on demand.
type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) stoppable {
	timer := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) last() *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}
