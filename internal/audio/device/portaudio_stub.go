//go:build !portaudio

package device

func openPortAudio() (Backend, error) {
	return nil, ErrNoBackend
}
