package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/config"
	"github.com/steveyiyo/livetutor/internal/core/session"
	"github.com/steveyiyo/livetutor/internal/core/tts"
	"github.com/steveyiyo/livetutor/internal/core/video"
	"github.com/steveyiyo/livetutor/internal/http/handlers"
	"github.com/steveyiyo/livetutor/internal/metrics"
	"github.com/steveyiyo/livetutor/pkg/ws"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Session  *session.Service
	Devices  device.MediaDevices
	Hub      *ws.Hub
	Chat     handlers.Chatter
	TTS      tts.Provider
	Speaker  *tts.Speaker
	Videos   *video.Service
	Download handlers.Downloader
	Registry *prometheus.Registry
	Log      *slog.Logger
}

func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(d.Log))

	sh := handlers.NewSessionsHandler(d.Session, d.Devices, cfg.SettingsFile, d.Log)
	wsh := handlers.NewStreamHandler(d.Hub, d.Session, d.Log)
	ch := handlers.NewChatHandler(d.Chat)
	th := handlers.NewTTSHandler(d.TTS, d.Speaker)
	vh := handlers.NewVideosHandler(d.Videos, d.Download)

	api := r.Group("/v1")
	api.GET("/voices", sh.ListVoices)
	api.GET("/devices", sh.ListDevices)
	api.GET("/settings", sh.GetSettings)
	api.PUT("/settings", sh.PutSettings)

	voice := api.Group("/voice")
	voice.POST("/connect", sh.Connect)
	voice.POST("/disconnect", sh.Disconnect)
	voice.GET("/state", sh.State)
	voice.PUT("/file", sh.PutFile)
	voice.DELETE("/file", sh.DeleteFile)
	voice.GET("/transcripts", sh.Transcripts)
	voice.DELETE("/transcripts", sh.ClearTranscripts)

	api.POST("/chat", ch.Send)
	api.POST("/tts", th.Synthesize)
	api.POST("/videos", vh.Create)
	api.GET("/videos/:id", vh.Get)
	api.GET("/videos/:id/content", vh.Content)

	r.GET("/v1/stream", wsh.WS)
	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Registry)))
	}
	return r
}

func requestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}
