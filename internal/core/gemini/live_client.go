// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/steveyiyo/livetutor/internal/core/live"
)

// LiveEndpoint is the BidiGenerateContent websocket.
const LiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	writeWait    = 10 * time.Second
	eventBacklog = 32
)

var ErrLiveClosed = errors.New("gemini: live connection closed")

// JSON structures for the websocket protocol

type sendTextPart struct {
	Text string `json:"text"`
}

type sendContent struct {
	Parts []sendTextPart `json:"parts"`
}

type sendPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type sendVoiceConfig struct {
	PrebuiltVoiceConfig sendPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type sendSpeechConfig struct {
	VoiceConfig sendVoiceConfig `json:"voiceConfig"`
}

type sendGenerationConfig struct {
	ResponseModalities []string          `json:"responseModalities,omitempty"`
	SpeechConfig       *sendSpeechConfig `json:"speechConfig,omitempty"`
}

type sendSetup struct {
	Model                    string               `json:"model"`
	GenerationConfig         sendGenerationConfig `json:"generationConfig"`
	SystemInstruction        *sendContent         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}            `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}            `json:"outputAudioTranscription,omitempty"`
}

type sendSetupFrame struct {
	Setup sendSetup `json:"setup"`
}

type sendMediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type sendRealtimeInput struct {
	MediaChunks []sendMediaChunk `json:"mediaChunks"`
}

type sendRealtimeFrame struct {
	RealtimeInput sendRealtimeInput `json:"realtimeInput"`
}

type LiveOption func(*LiveClient)

// WithEndpoint points the client at another websocket URL.
func WithEndpoint(u string) LiveOption {
	return func(c *LiveClient) { c.endpoint = u }
}

func WithLiveLogger(l *slog.Logger) LiveOption {
	return func(c *LiveClient) { c.log = l }
}

// LiveClient speaks the Live API over a raw websocket.
type LiveClient struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
	log      *slog.Logger
}

func NewLiveClient(apiKey string, opts ...LiveOption) *LiveClient {
	c := &LiveClient{
		apiKey:   apiKey,
		endpoint: LiveEndpoint,
		dialer:   websocket.DefaultDialer,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials the endpoint and sends the setup frame. The returned Conn
// reports open once the server acknowledges the setup.
func (c *LiveClient) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("gemini: live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: dial live: %w", err)
	}

	setup, err := sonic.Marshal(setupFrame(cfg))
	if err != nil {
		ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, setup); err != nil {
		ws.Close()
		return nil, fmt.Errorf("gemini: send setup: %w", err)
	}

	lc := &liveConn{
		conn:       ws,
		log:        c.log,
		sendChan:   make(chan []byte),
		events:     make(chan live.Event, eventBacklog),
		doneChan:   make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go lc.readMessages()
	go lc.writeMessages()
	return lc, nil
}

func setupFrame(cfg live.Config) sendSetupFrame {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	s := sendSetup{
		Model:            model,
		GenerationConfig: sendGenerationConfig{ResponseModalities: cfg.ResponseModalities},
	}
	if cfg.VoiceName != "" {
		s.GenerationConfig.SpeechConfig = &sendSpeechConfig{
			VoiceConfig: sendVoiceConfig{PrebuiltVoiceConfig: sendPrebuiltVoice{VoiceName: cfg.VoiceName}},
		}
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &sendContent{Parts: []sendTextPart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputAudioTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputAudioTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	return sendSetupFrame{Setup: s}
}

type liveConn struct {
	conn *websocket.Conn
	log  *slog.Logger

	sendChan   chan []byte
	events     chan live.Event
	doneChan   chan struct{}
	writerDone chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

func (c *liveConn) Events() <-chan live.Event { return c.events }

// SendRealtimeInput queues one media chunk for the writer goroutine.
func (c *liveConn) SendRealtimeInput(ctx context.Context, in live.RealtimeInput) error {
	frame, err := sonic.Marshal(sendRealtimeFrame{RealtimeInput: sendRealtimeInput{
		MediaChunks: []sendMediaChunk{{
			MimeType: in.Media.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(in.Media.Data),
		}},
	}})
	if err != nil {
		return err
	}
	select {
	case c.sendChan <- frame:
		return nil
	case <-c.doneChan:
		return ErrLiveClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a normal closure and tears the socket down. Safe to call twice.
func (c *liveConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.doneChan)
		<-c.writerDone
		c.conn.Close()
		<-c.readerDone
	})
	return nil
}

// emit delivers ev unless the connection is being closed locally.
func (c *liveConn) emit(ev live.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.doneChan:
		return false
	}
}

// readMessages runs in a goroutine and turns frames into ordered events.
func (c *liveConn) readMessages() {
	defer close(c.readerDone)
	defer close(c.events)
	opened := false
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.doneChan:
				return
			default:
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.emit(live.Event{Kind: live.EventClose, Reason: fmt.Sprintf("%d %s", ce.Code, ce.Text)})
			} else {
				c.emit(live.Event{Kind: live.EventError, Err: err})
			}
			return
		}

		var received live.ServerMessage
		if err := sonic.Unmarshal(message, &received); err != nil {
			c.log.Warn("live: unmarshal server frame", "err", err)
			continue
		}

		if received.SetupComplete != nil {
			if !opened {
				opened = true
				if !c.emit(live.Event{Kind: live.EventOpen}) {
					return
				}
			}
			continue
		}
		if received.ServerContent != nil {
			msg := received
			if !c.emit(live.Event{Kind: live.EventMessage, Message: &msg}) {
				return
			}
		}
	}
}

// writeMessages runs in a goroutine and is the only writer after setup.
func (c *liveConn) writeMessages() {
	defer close(c.writerDone)
	for {
		select {
		case frame := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("live: write frame", "err", err)
			}
		case <-c.doneChan:
			c.log.Debug("live: closing connection")
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				c.log.Debug("live: write close", "err", err)
			}
			return
		}
	}
}
