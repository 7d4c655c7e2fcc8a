package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/config"
	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/core/session"
	"github.com/steveyiyo/livetutor/internal/filecontext"
	"github.com/steveyiyo/livetutor/pkg/types"
)

// SessionsHandler drives the single live voice session.
type SessionsHandler struct {
	Svc          *session.Service
	Devices      device.MediaDevices
	SettingsFile string
	Log          *slog.Logger
}

func NewSessionsHandler(svc *session.Service, devs device.MediaDevices, settingsFile string, log *slog.Logger) *SessionsHandler {
	return &SessionsHandler{Svc: svc, Devices: devs, SettingsFile: settingsFile, Log: log}
}

// settingsFrom fills unset request fields from the current settings.
func (h *SessionsHandler) settingsFrom(req types.ConnectReq) (live.Settings, error) {
	s := h.Svc.Settings()
	if req.VoiceName != "" {
		s.VoiceName = req.VoiceName
	}
	if req.DeviceID != "" {
		s.DeviceID = req.DeviceID
	}
	if req.SpeakingRate != "" {
		s.SpeakingRate = live.SpeakingRate(req.SpeakingRate)
	}
	return s, config.ValidateSettings(s)
}

func (h *SessionsHandler) Connect(c *gin.Context) {
	var req types.ConnectReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
			return
		}
	}
	s, err := h.settingsFrom(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings", "detail": err.Error()})
		return
	}
	if err := h.Svc.Connect(c.Request.Context(), &s); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "connect_failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.Svc.State())
}

func (h *SessionsHandler) Disconnect(c *gin.Context) {
	h.Svc.Disconnect()
	c.JSON(http.StatusOK, h.Svc.State())
}

func (h *SessionsHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Svc.State())
}

func (h *SessionsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.Svc.Settings())
}

// PutSettings stores settings for the next connect and persists them when a
// settings file is configured.
func (h *SessionsHandler) PutSettings(c *gin.Context) {
	var req types.ConnectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	s, err := h.settingsFrom(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings", "detail": err.Error()})
		return
	}
	h.Svc.UpdateSettings(s)
	if h.SettingsFile != "" {
		if err := config.SaveSettings(h.SettingsFile, s); err != nil {
			h.Log.Warn("persist settings", "path", h.SettingsFile, "err", err)
		}
	}
	c.JSON(http.StatusOK, s)
}

func (h *SessionsHandler) PutFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	defer f.Close()

	fc, err := filecontext.Read(fh.Filename, f)
	switch {
	case errors.Is(err, filecontext.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
		return
	case err != nil:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_file", "detail": err.Error()})
		return
	}
	h.Svc.SetFile(fc)
	c.JSON(http.StatusOK, h.Svc.State())
}

func (h *SessionsHandler) DeleteFile(c *gin.Context) {
	h.Svc.ClearFile()
	c.JSON(http.StatusOK, h.Svc.State())
}

func (h *SessionsHandler) Transcripts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.Svc.Transcripts()})
}

func (h *SessionsHandler) ClearTranscripts(c *gin.Context) {
	h.Svc.ClearTranscripts()
	c.Status(http.StatusNoContent)
}

func (h *SessionsHandler) ListDevices(c *gin.Context) {
	devs, err := h.Devices.EnumerateDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "devices_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devs})
}

func (h *SessionsHandler) ListVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": live.Voices})
}
