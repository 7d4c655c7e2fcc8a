package gemini

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/core/live"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeLive is a scripted BidiGenerateContent peer.
type fakeLive struct {
	t      *testing.T
	setup  chan map[string]any
	chunks chan map[string]any
	script func(conn *websocket.Conn)
	key    chan string
}

func newFakeLive(t *testing.T, script func(*websocket.Conn)) (*fakeLive, *httptest.Server) {
	f := &fakeLive{
		t:      t,
		setup:  make(chan map[string]any, 1),
		chunks: make(chan map[string]any, 16),
		script: script,
		key:    make(chan string, 1),
	}
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.key <- r.URL.Query().Get("key")
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		f.setup <- setup
		go func() {
			for {
				var m map[string]any
				if err := conn.ReadJSON(&m); err != nil {
					close(f.chunks)
					return
				}
				f.chunks <- m
			}
		}()
		f.script(conn)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, events <-chan live.Event) live.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return live.Event{}
}

func testConfig() live.Config {
	return live.Config{
		Model:                    live.DefaultModel,
		SystemInstruction:        "be kind",
		VoiceName:                "Kore",
		ResponseModalities:       []string{"AUDIO"},
		InputAudioTranscription:  true,
		OutputAudioTranscription: true,
	}
}

func TestLiveClient_SessionFlow(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0x00, 0x40})
	released := make(chan struct{})
	f, srv := newFakeLive(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"`+audio+`"}}]}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"outputTranscription":{"text":"Hi"},"turnComplete":true}}`))
		<-released
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	lc := NewLiveClient("secret", WithEndpoint(wsURL(srv)), WithLiveLogger(quiet))
	conn, err := lc.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "secret", <-f.key)
	setup := (<-f.setup)["setup"].(map[string]any)
	assert.Equal(t, "models/"+live.DefaultModel, setup["model"])
	assert.Contains(t, setup, "inputAudioTranscription")
	assert.Contains(t, setup, "outputAudioTranscription")
	gen := setup["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
	voice := gen["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Kore", voice["voiceName"])

	events := conn.Events()
	assert.Equal(t, live.EventOpen, next(t, events).Kind)

	ev := next(t, events)
	require.Equal(t, live.EventMessage, ev.Kind)
	assert.Equal(t, audio, ev.Message.Audio())

	ev = next(t, events)
	require.Equal(t, live.EventMessage, ev.Kind, "undecodable frames are skipped")
	assert.Equal(t, "Hi", ev.Message.ServerContent.OutputTranscription.Text)
	assert.True(t, ev.Message.ServerContent.TurnComplete)

	require.NoError(t, conn.SendRealtimeInput(context.Background(), live.RealtimeInput{Media: pcm.EncodeBlob([]float32{0.5})}))
	chunk := (<-f.chunks)["realtimeInput"].(map[string]any)["mediaChunks"].([]any)[0].(map[string]any)
	assert.Equal(t, "audio/pcm;rate=16000", chunk["mimeType"])
	assert.Equal(t, audio, chunk["data"])

	close(released)
	ev = next(t, events)
	assert.Equal(t, live.EventClose, ev.Kind)
	assert.Contains(t, ev.Reason, "1000")
	_, ok := <-events
	assert.False(t, ok)
}

func TestLiveClient_CloseIsIdempotent(t *testing.T) {
	f, srv := newFakeLive(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		time.Sleep(time.Second)
	})
	lc := NewLiveClient("k", WithEndpoint(wsURL(srv)), WithLiveLogger(quiet))
	conn, err := lc.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	<-f.setup

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	err = conn.SendRealtimeInput(context.Background(), live.RealtimeInput{Media: pcm.EncodeBlob([]float32{0})})
	assert.ErrorIs(t, err, ErrLiveClosed)
	for range conn.Events() {
	}
}

func TestLiveClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewLiveClient("k", WithEndpoint(wsURL(srv))).Connect(context.Background(), testConfig())
	assert.ErrorContains(t, err, "dial live")
}

func TestSetupFrame_OmitsUnsetFields(t *testing.T) {
	b, err := sonic.Marshal(setupFrame(live.Config{Model: "models/custom"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"setup":{"model":"models/custom","generationConfig":{}}}`, string(b))
}
