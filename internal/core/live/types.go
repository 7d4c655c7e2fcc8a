package live

import (
	"context"
	"fmt"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
)

// SpeakingRate is the pacing preference from settings.
type SpeakingRate string

const (
	RateSlow   SpeakingRate = "slow"
	RateNormal SpeakingRate = "normal"
	RateFast   SpeakingRate = "fast"
)

// Settings is the snapshot read at connect time.
type Settings struct {
	VoiceName    string       `json:"voice_name" yaml:"voice_name"`
	DeviceID     string       `json:"device_id" yaml:"device_id"`
	SpeakingRate SpeakingRate `json:"speaking_rate" yaml:"speaking_rate"`
}

func DefaultSettings() Settings {
	return Settings{VoiceName: "Kore", DeviceID: "default", SpeakingRate: RateNormal}
}

type FileKind string

const (
	FileImage FileKind = "image"
	FileText  FileKind = "text"
)

// FileContext is an upload attached to a session: images are sent as the
// first media message, text is spliced into the system instruction.
type FileContext struct {
	Name     string   `json:"name"`
	Kind     FileKind `json:"type"`
	Data     []byte   `json:"-"`
	MIMEType string   `json:"mime_type"`
}

// Config is what the transport needs to open a session.
type Config struct {
	Model                    string
	SystemInstruction        string
	VoiceName                string
	ResponseModalities       []string
	InputAudioTranscription  bool
	OutputAudioTranscription bool
}

// RealtimeInput is one upstream media message.
type RealtimeInput struct {
	Media pcm.Blob
}

// InlineData carries base64 media as it arrives on the wire.
type InlineData struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type Turn struct {
	Parts []Part `json:"parts"`
}

type Transcription struct {
	Text string `json:"text"`
}

type ServerContent struct {
	ModelTurn           *Turn          `json:"modelTurn,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

// ServerMessage is one inbound event payload.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// Audio returns the first part's inline audio, if any.
func (m *ServerMessage) Audio() string {
	if m == nil || m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return ""
	}
	parts := m.ServerContent.ModelTurn.Parts
	if len(parts) == 0 || parts[0].InlineData == nil {
		return ""
	}
	return parts[0].InlineData.Data
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one callback from the transport, delivered in order on a single
// channel.
type Event struct {
	Kind    EventKind
	Message *ServerMessage
	Err     error
	Reason  string
}

// Conn is an open bidirectional stream. Events ends with exactly one Close
// or Error and is then closed.
type Conn interface {
	Events() <-chan Event
	SendRealtimeInput(ctx context.Context, in RealtimeInput) error
	Close() error
}

// Transport opens Conns to the remote model.
type Transport interface {
	Connect(ctx context.Context, cfg Config) (Conn, error)
}
