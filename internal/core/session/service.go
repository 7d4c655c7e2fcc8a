// Package session binds the live controller to the transcript, the current
// file context and stream subscribers.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/core/transcript"
	"github.com/steveyiyo/livetutor/pkg/types"
)

// FileChangedNotice is published when a file change ends a running session.
const FileChangedNotice = "File context changed. Reconnect to use the new file."

type Publisher interface {
	Broadcast(v any) error
}

type Options struct {
	Model     string
	Settings  live.Settings
	Publisher Publisher
	Logger    *slog.Logger
}

type Service struct {
	ctrl *live.Controller
	asm  *transcript.Assembler
	pub  Publisher
	log  *slog.Logger

	mu       sync.Mutex
	settings live.Settings
	file     *live.FileContext
}

func NewService(t live.Transport, audio live.Audio, o Options) *Service {
	s := &Service{pub: o.Publisher, log: o.Logger, settings: o.Settings}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.settings == (live.Settings{}) {
		s.settings = live.DefaultSettings()
	}
	opts := []live.Option{live.WithLogger(s.log), live.WithStateListener(s.onState)}
	if o.Model != "" {
		opts = append(opts, live.WithModel(o.Model))
	}
	s.ctrl = live.NewController(t, audio, opts...)
	s.asm = transcript.New(transcript.OnChange(s.onTranscripts))
	return s
}

// Connect starts a session. Nil settings reuse the current ones.
func (s *Service) Connect(ctx context.Context, settings *live.Settings) error {
	s.mu.Lock()
	if settings != nil {
		s.settings = *settings
	}
	cur, file := s.settings, s.file
	s.mu.Unlock()

	return s.ctrl.Connect(ctx, cur, file, live.Callbacks{
		OnTranscript: func(text string, isUser, isFinal bool) {
			s.asm.Apply(text, transcript.SpeakerOf(isUser), isFinal)
		},
		OnError: func(err error) {
			s.publish(types.Event{Type: "error", Message: err.Error()})
		},
		OnClose: func() {
			s.log.Info("session ended by remote")
		},
	})
}

func (s *Service) Disconnect() { s.ctrl.Disconnect() }

func (s *Service) State() types.StateResp {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := types.StateResp{State: s.ctrl.State().String(), Settings: s.settings}
	if err := s.ctrl.LastError(); err != nil {
		resp.Error = err.Error()
	}
	if s.file != nil {
		resp.File = &types.FileInfo{
			Name:     s.file.Name,
			Type:     string(s.file.Kind),
			MIMEType: s.file.MIMEType,
			Size:     len(s.file.Data),
		}
	}
	return resp
}

func (s *Service) Settings() live.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies to the next connect.
func (s *Service) UpdateSettings(settings live.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// SetFile replaces the file context. A running session is not hot-swapped:
// it is torn down and a notice is published.
func (s *Service) SetFile(fc *live.FileContext) {
	s.mu.Lock()
	s.file = fc
	s.mu.Unlock()
	s.endForFileChange()
}

func (s *Service) ClearFile() { s.SetFile(nil) }

func (s *Service) endForFileChange() {
	switch s.ctrl.State() {
	case live.Connecting, live.Connected:
		s.ctrl.Disconnect()
		s.log.Info("file context changed, session ended")
		s.publish(types.Event{Type: "notice", Message: FileChangedNotice})
	}
}

func (s *Service) Transcripts() []transcript.Entry { return s.asm.Entries() }

func (s *Service) ClearTranscripts() { s.asm.Clear() }

// Level reports the live output loudness, or ok=false with no session.
func (s *Service) Level() (rms, peak float64, ok bool) {
	a := s.ctrl.OutputAnalyser()
	if a == nil {
		return 0, 0, false
	}
	return a.Level(), a.Peak(), true
}

// RunLevels publishes output levels at the given interval while a session
// is live, until ctx ends.
func (s *Service) RunLevels(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if rms, peak, ok := s.Level(); ok {
				s.publishRaw(types.LevelEvent{Type: "level", RMS: rms, Peak: peak})
			}
		}
	}
}

func (s *Service) onState(st live.State) {
	ev := types.Event{Type: "state", State: st.String()}
	if st == live.Error {
		if err := s.ctrl.LastError(); err != nil {
			ev.Message = err.Error()
		}
	}
	s.publish(ev)
}

func (s *Service) onTranscripts(entries []transcript.Entry) {
	s.publish(types.Event{Type: "transcripts", Entries: entries})
}

func (s *Service) publish(ev types.Event) {
	ev.TS = time.Now().UnixMilli()
	s.publishRaw(ev)
}

func (s *Service) publishRaw(v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Broadcast(v); err != nil {
		s.log.Warn("publish event", "err", err)
	}
}
