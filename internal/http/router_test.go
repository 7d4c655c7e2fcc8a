package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/audio/playback"
	"github.com/steveyiyo/livetutor/internal/config"
	"github.com/steveyiyo/livetutor/internal/core/gemini"
	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/core/session"
	"github.com/steveyiyo/livetutor/internal/core/tts"
	"github.com/steveyiyo/livetutor/internal/core/video"
	h "github.com/steveyiyo/livetutor/internal/http"
	"github.com/steveyiyo/livetutor/internal/metrics"
	"github.com/steveyiyo/livetutor/internal/repo/memory"
	"github.com/steveyiyo/livetutor/pkg/ws"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func init() { gin.SetMode(gin.TestMode) }

type idleConn struct {
	once   sync.Once
	events chan live.Event
}

func (c *idleConn) Events() <-chan live.Event { return c.events }

func (c *idleConn) SendRealtimeInput(context.Context, live.RealtimeInput) error { return nil }

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.events) })
	return nil
}

type idleTransport struct{}

func (idleTransport) Connect(context.Context, live.Config) (live.Conn, error) {
	return &idleConn{events: make(chan live.Event, 1)}, nil
}

type fakeChat struct {
	history []gemini.ChatMessage
	atts    []live.FileContext
	opts    gemini.ChatOptions
}

func (f *fakeChat) Chat(_ context.Context, history []gemini.ChatMessage, msg string, atts []live.FileContext, opts gemini.ChatOptions) (*gemini.ChatResponse, error) {
	f.history, f.atts, f.opts = history, atts, opts
	return &gemini.ChatResponse{Model: gemini.ChatModelFast, Text: "echo: " + msg}, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text, voice string) (*tts.Speech, error) {
	return tts.NewSpeech(voice, pcm.Encode(make([]float32, 4800)))
}

type fakeVideos struct {
	release chan struct{}
}

func (f *fakeVideos) GenerateVideo(ctx context.Context, req video.Request) (string, error) {
	select {
	case <-f.release:
		return "https://example.org/v.mp4", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeVideos) DownloadVideo(_ context.Context, uri string, w io.Writer) (string, error) {
	_, err := io.WriteString(w, "MP4DATA")
	return "video/mp4", err
}

type env struct {
	router *gin.Engine
	sess   *session.Service
	hub    *ws.Hub
	chat   *fakeChat
	videos *fakeVideos
	out    *playback.Timeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hub := ws.NewHub()
	sess := session.NewService(idleTransport{}, device.NewNull(), session.Options{Publisher: hub, Logger: quiet})
	t.Cleanup(sess.Disconnect)
	fv := &fakeVideos{release: make(chan struct{})}
	vs := video.NewService(fv, memory.NewJobRepo(), quiet)
	t.Cleanup(vs.Close)
	out := playback.NewTimeline(pcm.OutputSampleRate)
	e := &env{sess: sess, hub: hub, chat: &fakeChat{}, videos: fv, out: out}
	e.router = h.NewRouter(config.Config{}, h.Deps{
		Session:  sess,
		Devices:  device.NewNull(),
		Hub:      hub,
		Chat:     e.chat,
		TTS:      fakeTTS{},
		Speaker:  tts.NewSpeaker(out),
		Videos:   vs,
		Download: fv,
		Registry: metrics.NewRegistry(),
		Log:      quiet,
	})
	return e
}

func (e *env) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) json(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return e.do(method, path, r, "application/json")
}

func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, _ = fw.Write(data)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type stateBody struct {
	State string `json:"state"`
	File  *struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"file"`
}

func TestCatalogues(t *testing.T) {
	e := newEnv(t)

	w := e.json(http.MethodGet, "/v1/voices", "")
	require.Equal(t, http.StatusOK, w.Code)
	voices := decode[struct{ Voices []live.Voice }](t, w)
	assert.Len(t, voices.Voices, 5)

	w = e.json(http.MethodGet, "/v1/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"device_id":"default"`)

	w = e.json(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "livetutor_live_session_state")
}

func TestVoiceLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.json(http.MethodPost, "/v1/voice/connect", `{"voice_name":"Robot"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.json(http.MethodPost, "/v1/voice/connect", `{"voice_name":"Puck","speaking_rate":"slow"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "CONNECTING", decode[stateBody](t, w).State)
	assert.Equal(t, "Puck", e.sess.Settings().VoiceName)

	w = e.json(http.MethodPost, "/v1/voice/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DISCONNECTED", decode[stateBody](t, w).State)

	w = e.json(http.MethodPost, "/v1/voice/disconnect", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	w := e.json(http.MethodPut, "/v1/settings", `{"voice_name":"Fenrir","speaking_rate":"fast"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[live.Settings](t, e.json(http.MethodGet, "/v1/settings", ""))
	assert.Equal(t, live.Settings{VoiceName: "Fenrir", DeviceID: "default", SpeakingRate: live.RateFast}, got)

	w = e.json(http.MethodPut, "/v1/settings", `{"speaking_rate":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileContext(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, "file", "notes.md", []byte("# Plants"), nil)
	w := e.do(http.MethodPut, "/v1/voice/file", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[stateBody](t, w)
	require.NotNil(t, st.File)
	assert.Equal(t, "notes.md", st.File.Name)
	assert.Equal(t, "text", st.File.Type)

	body, ct = multipartBody(t, "file", "slides.pdf", []byte("%PDF-1.7"), nil)
	w = e.do(http.MethodPut, "/v1/voice/file", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = e.json(http.MethodDelete, "/v1/voice/file", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[stateBody](t, w).File)
}

func TestTranscripts(t *testing.T) {
	e := newEnv(t)
	w := e.json(http.MethodGet, "/v1/voice/transcripts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())

	w = e.json(http.MethodDelete, "/v1/voice/transcripts", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestChat(t *testing.T) {
	e := newEnv(t)
	w := e.json(http.MethodPost, "/v1/chat", `{
		"history":[{"role":"user","text":"hi"},{"role":"model","text":"hello"}],
		"message":"what is this?",
		"attachments":[{"name":"a.png","type":"image","mime_type":"image/png","data":"iVBO"}],
		"use_thinking":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[gemini.ChatResponse](t, w)
	assert.Equal(t, "echo: what is this?", resp.Text)
	assert.Len(t, e.chat.history, 2)
	require.Len(t, e.chat.atts, 1)
	assert.Equal(t, live.FileImage, e.chat.atts[0].Kind)
	assert.True(t, e.chat.opts.UseThinking)

	w = e.json(http.MethodPost, "/v1/chat", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.json(http.MethodPost, "/v1/chat", `{"message":"x","history":[{"role":"system","text":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTTS(t *testing.T) {
	e := newEnv(t)
	w := e.json(http.MethodPost, "/v1/tts", `{"text":"namaskara","play":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		MIMEType   string   `json:"mime_type"`
		Audio      []byte   `json:"audio"`
		DurationMs int64    `json:"duration_ms"`
		StartsAt   *float64 `json:"starts_at"`
	}](t, w)
	assert.Equal(t, "audio/pcm;rate=24000", resp.MIMEType)
	assert.Len(t, resp.Audio, 9600)
	assert.Equal(t, int64(200), resp.DurationMs)
	require.NotNil(t, resp.StartsAt)
	assert.Equal(t, 1, e.out.Pending())

	w = e.json(http.MethodPost, "/v1/tts", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVideos(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, "image", "notes.txt", []byte("text"), nil)
	w := e.do(http.MethodPost, "/v1/videos", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	body, ct = multipartBody(t, "image", "leaf.png", pngHeader, map[string]string{"aspect_ratio": "1:1"})
	w = e.do(http.MethodPost, "/v1/videos", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, "image", "leaf.png", pngHeader, map[string]string{"prompt": "sway", "aspect_ratio": "9:16"})
	w = e.do(http.MethodPost, "/v1/videos", body, ct)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[video.Job](t, w)
	assert.Equal(t, "9:16", job.AspectRatio)

	w = e.json(http.MethodGet, "/v1/videos/"+job.ID+"/content", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(e.videos.release)
	require.Eventually(t, func() bool {
		w := e.json(http.MethodGet, "/v1/videos/"+job.ID, "")
		return decode[video.Job](t, w).Status == video.StatusSucceeded
	}, time.Second, 5*time.Millisecond)

	w = e.json(http.MethodGet, "/v1/videos/"+job.ID+"/content", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MP4DATA", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))

	w = e.json(http.MethodGet, "/v1/videos/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStream(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, "DISCONNECTED", hello["state"])

	require.Eventually(t, func() bool { return e.hub.Len() == 1 }, time.Second, time.Millisecond)
	e.sess.ClearTranscripts()

	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "transcripts", ev["type"])
	assert.Equal(t, []any{}, ev["entries"])
}
