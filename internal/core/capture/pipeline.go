package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/metrics"
)

// queueDepth bounds how much captured audio may wait for the transport,
// roughly 16 seconds of speech.
const queueDepth = 64

var ErrStopped = errors.New("capture: pipeline stopped")

// SendFunc ships one encoded frame upstream.
type SendFunc func(ctx context.Context, blob pcm.Blob) error

// Pipeline encodes frames on the audio callback and sends them from a single
// goroutine, so frames leave in capture order.
type Pipeline struct {
	stream device.Stream
	send   SendFunc
	log    *slog.Logger

	frames  chan pcm.Blob
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewPipeline(stream device.Stream, send SendFunc, log *slog.Logger) *Pipeline {
	return &Pipeline{
		stream: stream,
		send:   send,
		log:    log,
		frames: make(chan pcm.Blob, queueDepth),
	}
}

// Start begins capturing. Nothing is sent before ready is closed.
func (p *Pipeline) Start(ctx context.Context, ready <-chan struct{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.sendLoop(ctx, ready)
	if err := p.stream.Start(p.onFrame); err != nil {
		p.cancel()
		p.wg.Wait()
		return err
	}
	return nil
}

// onFrame runs on the audio thread.
func (p *Pipeline) onFrame(samples []float32) {
	select {
	case p.frames <- pcm.EncodeBlob(samples):
	default:
		if p.dropped.Add(1) == 1 {
			p.log.Warn("capture queue full, dropping frames")
		}
		metrics.FramesDropped.Inc()
	}
}

func (p *Pipeline) sendLoop(ctx context.Context, ready <-chan struct{}) {
	defer p.wg.Done()
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case blob := <-p.frames:
			if err := p.send(ctx, blob); err != nil {
				p.log.Debug("send audio frame", "err", err)
				continue
			}
			p.sent.Add(1)
			metrics.FramesSent.Inc()
		}
	}
}

// Stop releases the microphone and ends the send loop. Safe to call twice.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if err := p.stream.Stop(); err != nil {
		p.log.Debug("stop capture stream", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.log.Debug("capture stopped", "sent", p.sent.Load(), "dropped", p.dropped.Load())
}

func (p *Pipeline) Sent() uint64    { return p.sent.Load() }
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }
