package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
)

type scheduled struct {
	start   int64
	samples []float32
}

func (s scheduled) end() int64 { return s.start + int64(len(s.samples)) }

// Timeline is a software output graph. The device pulls samples with Render
// and the clock advances by exactly what has been rendered.
type Timeline struct {
	mu         sync.Mutex
	sampleRate int
	rendered   int64
	queue      []scheduled
	gain       float32
	analyser   *Analyser
	closed     bool
}

func NewTimeline(sampleRate int) *Timeline {
	return &Timeline{
		sampleRate: sampleRate,
		gain:       1,
		analyser:   NewAnalyser(DefaultFFTSize),
	}
}

func (t *Timeline) SampleRate() int { return t.sampleRate }

func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.rendered) / float64(t.sampleRate)
}

// SetGain sets the output gain node value.
func (t *Timeline) SetGain(g float32) {
	t.mu.Lock()
	t.gain = g
	t.mu.Unlock()
}

// Start clamps to the rendered clock and enqueues under one lock. The
// returned time is where the buffer will actually begin.
func (t *Timeline) Start(buf *pcm.Buffer, at float64) (float64, error) {
	if buf.SampleRate != t.sampleRate {
		return 0, fmt.Errorf("playback: buffer rate %d, output rate %d", buf.SampleRate, t.sampleRate)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	item := scheduled{
		start:   int64(math.Round(at * float64(t.sampleRate))),
		samples: buf.Mono(),
	}
	if item.start < t.rendered {
		item.start = t.rendered
	}
	// keep the queue ordered by start; scheduled audio normally arrives in order
	i := len(t.queue)
	for i > 0 && t.queue[i-1].start > item.start {
		i--
	}
	t.queue = append(t.queue, scheduled{})
	copy(t.queue[i+1:], t.queue[i:])
	t.queue[i] = item
	return float64(item.start) / float64(t.sampleRate), nil
}

// Render fills out with the next len(out) samples.
func (t *Timeline) Render(out []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		clear(out)
		return
	}
	for i := range out {
		pos := t.rendered + int64(i)
		var v float32
		for _, item := range t.queue {
			if item.start > pos {
				break
			}
			if pos < item.end() {
				v += item.samples[pos-item.start]
			}
		}
		out[i] = v * t.gain
	}
	t.rendered += int64(len(out))

	n := 0
	for n < len(t.queue) && t.queue[n].end() <= t.rendered {
		n++
	}
	t.queue = t.queue[n:]
	t.analyser.Write(out)
}

// Pending is the number of buffers not yet fully played.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Timeline) Flush() {
	t.mu.Lock()
	t.queue = nil
	t.mu.Unlock()
}

func (t *Timeline) Analyser() *Analyser { return t.analyser }

func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.queue = nil
	return nil
}
