//go:build portaudio

package device

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/steveyiyo/livetutor/internal/audio/playback"
)

// outputFramesPerBuffer is 40ms at 24kHz.
const outputFramesPerBuffer = 960

type portAudio struct {
	mu      sync.Mutex
	outputs []*paOutput
}

func openPortAudio() (Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialize portaudio: %w", err)
	}
	return &portAudio{}, nil
}

func (p *portAudio) EnumerateDevices() ([]DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := []DeviceInfo{{DeviceID: DefaultDeviceID, Label: "Default", Kind: "audioinput"}}
	for _, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, DeviceInfo{DeviceID: strconv.Itoa(d.Index), Label: d.Name, Kind: "audioinput"})
	}
	return out, nil
}

func (p *portAudio) lookup(c Constraints) (*portaudio.DeviceInfo, error) {
	if c.DeviceID == "" || c.DeviceID == DefaultDeviceID {
		return portaudio.DefaultInputDevice()
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 && (strconv.Itoa(d.Index) == c.DeviceID || d.Name == c.DeviceID) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, c.DeviceID)
}

func (p *portAudio) GetUserMedia(c Constraints) (Stream, error) {
	dev, err := p.lookup(c)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(c.SampleRate)
	params.FramesPerBuffer = c.FrameSize

	s := &paStream{}
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, fmt.Errorf("device: open input %q: %w", dev.Name, err)
	}
	s.stream = stream
	return s, nil
}

func (p *portAudio) NewOutput(sampleRate int) (playback.Output, error) {
	o := &paOutput{Timeline: playback.NewTimeline(sampleRate)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), outputFramesPerBuffer, o.Render)
	if err != nil {
		return nil, fmt.Errorf("device: open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start output: %w", err)
	}
	o.stream = stream
	o.forget = func() { p.forget(o) }
	p.mu.Lock()
	p.outputs = append(p.outputs, o)
	p.mu.Unlock()
	return o, nil
}

func (p *portAudio) forget(o *paOutput) {
	p.mu.Lock()
	p.outputs = slices.DeleteFunc(p.outputs, func(x *paOutput) bool { return x == o })
	p.mu.Unlock()
}

func (p *portAudio) Close() error {
	p.mu.Lock()
	outs := p.outputs
	p.outputs = nil
	p.mu.Unlock()
	for _, o := range outs {
		_ = o.Close()
	}
	return portaudio.Terminate()
}

type paStream struct {
	stream  *portaudio.Stream
	onFrame atomic.Pointer[func([]float32)]
	mu      sync.Mutex
	stopped bool
}

func (s *paStream) process(in []float32) {
	if fn := s.onFrame.Load(); fn != nil {
		(*fn)(in)
	}
}

func (s *paStream) Start(onFrame func([]float32)) error {
	s.onFrame.Store(&onFrame)
	return s.stream.Start()
}

// Stop stops and releases the device; the stream cannot be restarted.
func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.onFrame.Store(nil)
	_ = s.stream.Stop()
	return s.stream.Close()
}

type paOutput struct {
	*playback.Timeline
	stream *portaudio.Stream
	once   sync.Once
	forget func()
}

func (o *paOutput) Close() error {
	o.once.Do(func() {
		if o.stream != nil {
			_ = o.stream.Stop()
			_ = o.stream.Close()
		}
		if o.forget != nil {
			o.forget()
		}
	})
	return o.Timeline.Close()
}
