package device

import (
	"slices"
	"sync"
	"time"

	"github.com/steveyiyo/livetutor/internal/audio/playback"
)

// Null is a headless backend: the microphone yields silence at the real frame
// period and outputs render into nowhere on a wall-clock tick.
type Null struct {
	mu      sync.Mutex
	outputs []*nullOutput
}

func NewNull() *Null { return &Null{} }

func (n *Null) EnumerateDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{DeviceID: DefaultDeviceID, Label: "Silent input", Kind: "audioinput"}}, nil
}

func (n *Null) GetUserMedia(c Constraints) (Stream, error) {
	if c.Exact && c.DeviceID != "" && c.DeviceID != DefaultDeviceID {
		return nil, ErrDeviceNotFound
	}
	return newNullStream(c), nil
}

func (n *Null) NewOutput(sampleRate int) (playback.Output, error) {
	o := &nullOutput{Timeline: playback.NewTimeline(sampleRate), done: make(chan struct{})}
	o.forget = func() { n.forget(o) }
	go o.run(20 * time.Millisecond)
	n.mu.Lock()
	n.outputs = append(n.outputs, o)
	n.mu.Unlock()
	return o, nil
}

func (n *Null) forget(o *nullOutput) {
	n.mu.Lock()
	n.outputs = slices.DeleteFunc(n.outputs, func(x *nullOutput) bool { return x == o })
	n.mu.Unlock()
}

// Outputs is the number of open outputs.
func (n *Null) Outputs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outputs)
}

func (n *Null) Close() error {
	n.mu.Lock()
	outs := n.outputs
	n.outputs = nil
	n.mu.Unlock()
	for _, o := range outs {
		_ = o.Close()
	}
	return nil
}

type nullStream struct {
	frame  int
	period time.Duration
	mu     sync.Mutex
	done   chan struct{}
}

func newNullStream(c Constraints) *nullStream {
	rate, frame := c.SampleRate, c.FrameSize
	if rate <= 0 {
		rate = 16000
	}
	if frame <= 0 {
		frame = 4096
	}
	return &nullStream{
		frame:  frame,
		period: time.Duration(frame) * time.Second / time.Duration(rate),
	}
}

func (s *nullStream) Start(onFrame func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		t := time.NewTicker(s.period)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				onFrame(make([]float32, s.frame))
			}
		}
	}(s.done)
	return nil
}

func (s *nullStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	return nil
}

type nullOutput struct {
	*playback.Timeline
	once   sync.Once
	done   chan struct{}
	forget func()
}

func (o *nullOutput) run(tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	buf := make([]float32, int(tick)*o.SampleRate()/int(time.Second))
	for {
		select {
		case <-o.done:
			return
		case <-t.C:
			o.Render(buf)
		}
	}
}

func (o *nullOutput) Close() error {
	o.once.Do(func() {
		close(o.done)
		o.forget()
	})
	return o.Timeline.Close()
}
