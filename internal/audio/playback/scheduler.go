// Package playback schedules decoded model audio for gapless, ordered output.
package playback

import (
	"errors"
	"sync"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
)

var ErrClosed = errors.New("playback: output closed")

// Output is an audio graph with its own clock: gain -> analyser -> device.
type Output interface {
	// CurrentTime is the output clock in seconds.
	CurrentTime() float64
	// Start schedules buf to begin at the given clock time, or at the clock
	// if that time has already been rendered, and returns the time used.
	Start(buf *pcm.Buffer, at float64) (float64, error)
	// Flush drops every buffer that has not finished playing.
	Flush()
	Analyser() *Analyser
	Close() error
}

// Scheduler keeps a cursor of where the next buffer should start so that
// independently arriving chunks never overlap and never leave stale gaps.
type Scheduler struct {
	mu            sync.Mutex
	out           Output
	sampleRate    int
	channels      int
	nextStartTime float64
}

func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out, sampleRate: pcm.OutputSampleRate, channels: 1}
}

// Schedule queues buf at max(cursor, clock) and advances the cursor by its
// duration.
func (s *Scheduler) Schedule(buf *pcm.Buffer) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startAt, err := s.out.Start(buf, max(s.nextStartTime, s.out.CurrentTime()))
	if err != nil {
		return 0, err
	}
	s.nextStartTime = startAt + buf.Duration()
	return startAt, nil
}

// Play decodes a base64 PCM payload and schedules it. On a decode error the
// chunk is dropped and the cursor is left as it was.
func (s *Scheduler) Play(payload string) (float64, error) {
	buf, err := pcm.DecodeBase64(payload, s.sampleRate, s.channels)
	if err != nil {
		return 0, err
	}
	return s.Schedule(buf)
}

// TurnComplete pulls the cursor up to the clock after an upstream pause.
func (s *Scheduler) TurnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStartTime = max(s.nextStartTime, s.out.CurrentTime())
}

// Interrupt drops queued audio after the model was cut off.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Flush()
	s.nextStartTime = s.out.CurrentTime()
}

func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

func (s *Scheduler) Analyser() *Analyser { return s.out.Analyser() }
