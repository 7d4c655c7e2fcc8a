// Package capture turns a microphone into a FIFO of encoded PCM frames.
package capture

import (
	"fmt"
	"log/slog"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/audio/pcm"
)

// FrameSize is the number of samples per captured frame (256ms at 16kHz).
const FrameSize = 4096

// Acquire opens the requested microphone, falling back to the default input
// when a specific device cannot be opened.
func Acquire(devs device.MediaDevices, deviceID string, log *slog.Logger) (device.Stream, error) {
	c := device.Constraints{SampleRate: pcm.InputSampleRate, FrameSize: FrameSize}
	if deviceID != "" && deviceID != device.DefaultDeviceID {
		c.DeviceID = deviceID
		c.Exact = true
	}
	stream, err := devs.GetUserMedia(c)
	if err == nil {
		return stream, nil
	}
	if !c.Exact {
		return nil, fmt.Errorf("capture: open default microphone: %w", err)
	}
	log.Warn("requested microphone failed, falling back to default", "device_id", deviceID, "err", err)
	stream, err = devs.GetUserMedia(device.Constraints{SampleRate: pcm.InputSampleRate, FrameSize: FrameSize})
	if err != nil {
		return nil, fmt.Errorf("capture: open default microphone: %w", err)
	}
	return stream, nil
}
