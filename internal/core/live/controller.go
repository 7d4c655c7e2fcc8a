// Package live runs a real-time voice session against a streaming model:
// microphone up, model audio down, transcripts on the side.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/audio/playback"
	"github.com/steveyiyo/livetutor/internal/core/capture"
	"github.com/steveyiyo/livetutor/internal/metrics"
)

// DefaultModel is the native-audio Live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

var errAborted = errors.New("live: disconnected during setup")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Callbacks are invoked from the session goroutine, in event order.
type Callbacks struct {
	OnTranscript func(text string, isUser, isFinal bool)
	OnError      func(err error)
	OnClose      func()
}

// Audio is the host audio system: microphones plus output contexts.
type Audio interface {
	device.MediaDevices
	NewOutput(sampleRate int) (playback.Output, error)
}

type Option func(*Controller)

func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithStateListener is notified after every state change.
func WithStateListener(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// Controller owns at most one session at a time. Connect while a session is
// live is a no-op, so sessions never race each other.
type Controller struct {
	transport Transport
	audio     Audio
	model     string
	log       *slog.Logger
	onState   func(State)

	mu      sync.Mutex
	state   State
	lastErr error
	sess    *session
}

func NewController(t Transport, audio Audio, opts ...Option) *Controller {
	c := &Controller{
		transport: t,
		audio:     audio,
		model:     DefaultModel,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError is the error that moved the controller to Error, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect starts a session. It returns once the transport is dialled; the
// session goes live when the transport reports open. Setup failures are also
// reported through cb.OnError.
func (c *Controller) Connect(ctx context.Context, settings Settings, fc *FileContext, cb Callbacks) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	s := newSession(settings, fc, cb, c.log)
	c.sess = s
	c.lastErr = nil
	c.state = Connecting
	c.mu.Unlock()
	c.notify(Connecting)

	s.log.Info("connecting", "voice", settings.VoiceName, "device_id", settings.DeviceID, "rate", settings.SpeakingRate)
	if err := c.setup(ctx, s); err != nil {
		if errors.Is(err, errAborted) {
			s.log.Info("setup abandoned after disconnect")
			return nil
		}
		c.fail(s, err)
		return err
	}
	go c.run(s)
	return nil
}

func (c *Controller) setup(ctx context.Context, s *session) error {
	out, err := c.audio.NewOutput(pcm.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("live: open output: %w", err)
	}
	if !s.hold(func() {
		s.output = out
		s.scheduler = playback.NewScheduler(out)
	}) {
		_ = out.Close()
		return errAborted
	}

	stream, err := capture.Acquire(c.audio, s.settings.DeviceID, s.log)
	if err != nil {
		return fmt.Errorf("live: microphone: %w", err)
	}
	if !s.hold(func() { s.stream = stream }) {
		_ = stream.Stop()
		return errAborted
	}

	conn, err := c.transport.Connect(ctx, Config{
		Model:                    c.model,
		SystemInstruction:        SystemInstruction(s.settings, s.file),
		VoiceName:                s.settings.VoiceName,
		ResponseModalities:       []string{"AUDIO"},
		InputAudioTranscription:  true,
		OutputAudioTranscription: true,
	})
	if err != nil {
		return fmt.Errorf("live: connect: %w", err)
	}
	if !s.hold(func() { s.conn = conn }) {
		_ = conn.Close()
		return errAborted
	}
	return nil
}

// run handles transport events strictly in delivery order.
func (c *Controller) run(s *session) {
	events := s.conn.Events()
	defer func() {
		for range events {
		}
	}()
	for ev := range events {
		if !c.current(s) {
			return
		}
		switch ev.Kind {
		case EventOpen:
			c.open(s)
		case EventMessage:
			s.handleMessage(ev.Message)
		case EventError:
			c.fail(s, fmt.Errorf("live: connection error: %w", ev.Err))
			return
		case EventClose:
			c.closed(s, ev.Reason)
			return
		}
	}
	c.closed(s, "stream ended")
}

func (c *Controller) open(s *session) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.state = Connected
	c.mu.Unlock()
	c.notify(Connected)
	s.log.Info("live session open")

	if s.file != nil && s.file.Kind == FileImage {
		in := RealtimeInput{Media: pcm.Blob{MIMEType: s.file.MIMEType, Data: s.file.Data}}
		if err := s.conn.SendRealtimeInput(s.ctx, in); err != nil {
			s.log.Warn("send image context", "err", err)
		} else {
			s.log.Info("sent image context", "name", s.file.Name)
		}
	}
	s.markReady()

	p := capture.NewPipeline(s.stream, s.sendAudio, s.log)
	if !s.hold(func() { s.pipeline = p }) {
		return
	}
	if err := p.Start(s.ctx, s.ready); err != nil && !errors.Is(err, capture.ErrStopped) {
		c.fail(s, fmt.Errorf("live: start capture: %w", err))
	}
}

func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		s.release()
		return
	}
	c.sess = nil
	c.state = Error
	c.lastErr = err
	c.mu.Unlock()

	s.log.Error("live session failed", "err", err)
	s.release()
	metrics.Sessions.WithLabelValues("error").Inc()
	c.notify(Error)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (c *Controller) closed(s *session, reason string) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.state = Disconnected
	c.mu.Unlock()

	s.log.Info("live session closed by remote", "reason", reason)
	s.release()
	metrics.Sessions.WithLabelValues("closed").Inc()
	c.notify(Disconnected)
	if s.cb.OnClose != nil {
		s.cb.OnClose()
	}
}

// Disconnect tears down the current session, if any. It may be called from
// any state and any goroutine, any number of times.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	if s != nil {
		c.state = Disconnected
	}
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.release()
	s.log.Info("disconnected")
	metrics.Sessions.WithLabelValues("disconnected").Inc()
	c.notify(Disconnected)
}

// OutputAnalyser is the visualisation tap of the live output, or nil.
func (c *Controller) OutputAnalyser() *playback.Analyser {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output == nil || s.closed {
		return nil
	}
	return s.output.Analyser()
}

func (c *Controller) current(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess == s
}

func (c *Controller) notify(st State) {
	metrics.SessionState.Set(float64(st))
	if c.onState != nil {
		c.onState(st)
	}
}

// session is everything that lives for one connect/disconnect cycle.
type session struct {
	id       string
	settings Settings
	file     *FileContext
	cb       Callbacks
	log      *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	closed    bool
	output    playback.Output
	scheduler *playback.Scheduler
	stream    device.Stream
	conn      Conn
	pipeline  *capture.Pipeline

	// per-direction accumulators, touched only by the run goroutine
	inputText  string
	outputText string
}

func newSession(settings Settings, fc *FileContext, cb Callbacks, log *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &session{
		id:       id,
		settings: settings,
		file:     fc,
		cb:       cb,
		log:      log.With("session", id),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
	}
}

// hold runs fn unless the session was already released.
func (s *session) hold(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *session) sendAudio(ctx context.Context, blob pcm.Blob) error {
	return s.conn.SendRealtimeInput(ctx, RealtimeInput{Media: blob})
}

func (s *session) handleMessage(msg *ServerMessage) {
	if msg == nil {
		return
	}
	if audio := msg.Audio(); audio != "" {
		switch _, err := s.scheduler.Play(audio); {
		case errors.Is(err, playback.ErrClosed):
			// output already released by teardown
		case err != nil:
			s.log.Warn("dropping undecodable audio chunk", "err", err)
			metrics.DecodeFailures.Inc()
		default:
			metrics.ChunksScheduled.Inc()
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}
	if sc.OutputTranscription != nil {
		s.outputText += sc.OutputTranscription.Text
		s.emit(s.outputText, false, false)
	}
	if sc.InputTranscription != nil {
		s.inputText += sc.InputTranscription.Text
		s.emit(s.inputText, true, false)
	}
	if sc.Interrupted {
		s.scheduler.Interrupt()
	}
	if sc.TurnComplete {
		if strings.TrimSpace(s.inputText) != "" {
			s.emit(s.inputText, true, true)
		}
		if strings.TrimSpace(s.outputText) != "" {
			s.emit(s.outputText, false, true)
		}
		s.inputText, s.outputText = "", ""
		s.scheduler.TurnComplete()
	}
}

func (s *session) emit(text string, isUser, isFinal bool) {
	speaker := "model"
	if isUser {
		speaker = "user"
	}
	metrics.TranscriptUpdates.WithLabelValues(speaker, fmt.Sprint(isFinal)).Inc()
	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(text, isUser, isFinal)
	}
}

// release frees every resource acquired so far. Later calls are no-ops.
func (s *session) release() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	p, stream, conn, out := s.pipeline, s.stream, s.conn, s.output
	s.mu.Unlock()

	s.cancel()
	if p != nil {
		p.Stop()
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			s.log.Debug("stop microphone", "err", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug("close transport", "err", err)
		}
	}
	if out != nil {
		if err := out.Close(); err != nil {
			s.log.Debug("close output", "err", err)
		}
	}
}
