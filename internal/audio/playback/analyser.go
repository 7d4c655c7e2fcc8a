package playback

import (
	"math"
	"sync"
)

// DefaultFFTSize matches the visualiser window used by the UI.
const DefaultFFTSize = 256

// Analyser keeps the most recent output samples for visualisation. It only
// observes the signal.
type Analyser struct {
	mu       sync.Mutex
	data     []float32
	writePos int
	filled   int
}

func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	return &Analyser{data: make([]float32, fftSize)}
}

// FFTSize is the window length.
func (a *Analyser) FFTSize() int { return len(a.data) }

// Write appends rendered samples, overwriting the oldest.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := len(a.data)
	if len(samples) >= size {
		copy(a.data, samples[len(samples)-size:])
		a.writePos = 0
		a.filled = size
		return
	}
	for _, s := range samples {
		a.data[a.writePos] = s
		a.writePos = (a.writePos + 1) % size
		if a.filled < size {
			a.filled++
		}
	}
}

// TimeDomain returns the window in chronological order.
func (a *Analyser) TimeDomain() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filled < len(a.data) {
		out := make([]float32, a.filled)
		copy(out, a.data[:a.filled])
		return out
	}
	out := make([]float32, len(a.data))
	n := copy(out, a.data[a.writePos:])
	copy(out[n:], a.data[:a.writePos])
	return out
}

// Level is the RMS of the window, 0..1.
func (a *Analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filled == 0 {
		return 0
	}
	var sum float64
	for _, s := range a.data[:a.filled] {
		sum += float64(s) * float64(s)
	}
	return math.Min(1, math.Sqrt(sum/float64(a.filled)))
}

// Peak is the maximum absolute amplitude of the window.
func (a *Analyser) Peak() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var peak float64
	for _, s := range a.data[:a.filled] {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return math.Min(1, peak)
}
