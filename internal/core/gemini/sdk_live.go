package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/steveyiyo/livetutor/internal/core/live"
)

// SDKTransport opens Live sessions through the genai client.
type SDKTransport struct {
	g *Client
}

func (g *Client) LiveTransport() *SDKTransport {
	return &SDKTransport{g: g}
}

func (t *SDKTransport) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	sess, err := t.g.c.Live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini: live connect: %w", err)
	}
	c := &sdkConn{
		sess:   sess,
		g:      t.g,
		events: make(chan live.Event, eventBacklog),
		done:   make(chan struct{}),
	}
	// the socket is already open once Connect returns
	c.events <- live.Event{Kind: live.EventOpen}
	go c.receive()
	return c, nil
}

func liveConnectConfig(cfg live.Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{}
	for _, m := range cfg.ResponseModalities {
		lc.ResponseModalities = append(lc.ResponseModalities, genai.Modality(m))
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.VoiceName != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	if cfg.InputAudioTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputAudioTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// serverMessage maps an SDK message onto the wire shape the controller
// consumes. Inline audio is re-encoded to base64 so both transports decode
// audio at the same place. Returns nil for messages without server content.
func serverMessage(m *genai.LiveServerMessage) *live.ServerMessage {
	if m == nil || m.ServerContent == nil {
		return nil
	}
	sc := m.ServerContent
	out := &live.ServerContent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		turn := &live.Turn{}
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				continue
			}
			part := live.Part{Text: p.Text}
			if p.InlineData != nil {
				part.InlineData = &live.InlineData{
					MIMEType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				}
			}
			turn.Parts = append(turn.Parts, part)
		}
		out.ModelTurn = turn
	}
	if sc.InputTranscription != nil {
		out.InputTranscription = &live.Transcription{Text: sc.InputTranscription.Text}
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscription = &live.Transcription{Text: sc.OutputTranscription.Text}
	}
	return &live.ServerMessage{ServerContent: out}
}

type sdkConn struct {
	sess *genai.Session
	g    *Client

	sendMu    sync.Mutex
	events    chan live.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *sdkConn) Events() <-chan live.Event { return c.events }

func (c *sdkConn) SendRealtimeInput(ctx context.Context, in live.RealtimeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrLiveClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: in.Media.MIMEType, Data: in.Media.Data},
	})
}

func (c *sdkConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.sess.Close()
	})
	return err
}

func (c *sdkConn) emit(ev live.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *sdkConn) receive() {
	defer close(c.events)
	for {
		m, err := c.sess.Receive()
		if err != nil {
			select {
			case <-c.done:
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
		msg := serverMessage(m)
		if msg == nil {
			c.g.log.Debug("live: skipping message without server content")
			continue
		}
		if !c.emit(live.Event{Kind: live.EventMessage, Message: msg}) {
			return
		}
	}
}
