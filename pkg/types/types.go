package types

import "time"

type ConnectReq struct {
	VoiceName    string `json:"voice_name"`
	DeviceID     string `json:"device_id"`
	SpeakingRate string `json:"speaking_rate"`
}

type FileInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type StateResp struct {
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	File     *FileInfo `json:"file,omitempty"`
	Settings any       `json:"settings"`
}

type Attachment struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type ChatMessage struct {
	Role string `json:"role" binding:"required,oneof=user model"`
	Text string `json:"text"`
}

type ChatReq struct {
	History     []ChatMessage `json:"history" binding:"dive"`
	Message     string        `json:"message" binding:"required"`
	Attachments []Attachment  `json:"attachments"`
	UseSearch   bool          `json:"use_search"`
	UseThinking bool          `json:"use_thinking"`
}

type TTSReq struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice"`
	Play  bool   `json:"play"`
}

type TTSResp struct {
	MIMEType   string   `json:"mime_type"`
	Audio      []byte   `json:"audio"`
	DurationMs int64    `json:"duration_ms"`
	StartsAt   *float64 `json:"starts_at,omitempty"`
}

type LevelEvent struct {
	Type string  `json:"type"`
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// Event is a message pushed to stream subscribers.
type Event struct {
	Type    string `json:"type"`
	TS      int64  `json:"ts"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Entries any    `json:"entries,omitempty"`
}

func NewEvent(kind string) Event {
	return Event{Type: kind, TS: time.Now().UnixMilli()}
}
