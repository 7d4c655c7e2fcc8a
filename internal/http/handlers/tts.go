package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/core/tts"
	"github.com/steveyiyo/livetutor/pkg/types"
)

type TTSHandler struct {
	Provider tts.Provider
	Speaker  *tts.Speaker
}

func NewTTSHandler(p tts.Provider, sp *tts.Speaker) *TTSHandler {
	return &TTSHandler{Provider: p, Speaker: sp}
}

func (h *TTSHandler) Synthesize(c *gin.Context) {
	var req types.TTSReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	s, err := h.Provider.Synthesize(c.Request.Context(), req.Text, req.Voice)
	if errors.Is(err, tts.ErrNoAudio) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "no_audio"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tts_failed"})
		return
	}
	resp := types.TTSResp{
		MIMEType:   pcm.MIMEType(pcm.OutputSampleRate),
		Audio:      s.PCM,
		DurationMs: s.Duration.Milliseconds(),
	}
	if req.Play {
		if h.Speaker == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no_output_device"})
			return
		}
		at, err := h.Speaker.Speak(s)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "playback_failed"})
			return
		}
		resp.StartsAt = &at
	}
	c.JSON(http.StatusOK, resp)
}
