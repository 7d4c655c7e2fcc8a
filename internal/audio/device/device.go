// Package device gives access to microphones and speakers on the host.
package device

import (
	"errors"
	"fmt"

	"github.com/steveyiyo/livetutor/internal/audio/playback"
)

// DefaultDeviceID selects the system default input.
const DefaultDeviceID = "default"

var (
	ErrDeviceNotFound = errors.New("device: requested device not found")
	ErrNoBackend      = errors.New("device: audio backend not available")
)

// DeviceInfo describes one audio input.
type DeviceInfo struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
}

// Constraints mirrors getUserMedia audio constraints. An empty DeviceID asks
// for the default device.
type Constraints struct {
	DeviceID   string
	Exact      bool
	SampleRate int
	FrameSize  int
}

// Stream is an open microphone. The frame callback runs on the audio thread
// and must not block.
type Stream interface {
	Start(onFrame func(samples []float32)) error
	Stop() error
}

// MediaDevices is the device enumeration and capture surface.
type MediaDevices interface {
	EnumerateDevices() ([]DeviceInfo, error)
	GetUserMedia(c Constraints) (Stream, error)
}

// Backend is a host audio system: inputs plus output contexts.
type Backend interface {
	MediaDevices
	NewOutput(sampleRate int) (playback.Output, error)
	Close() error
}

// Open returns the backend registered under name.
func Open(name string) (Backend, error) {
	switch name {
	case "", "null":
		return NewNull(), nil
	case "portaudio":
		return openPortAudio()
	}
	return nil, fmt.Errorf("device: unknown backend %q", name)
}
