package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/core/video"
	"github.com/steveyiyo/livetutor/internal/filecontext"
)

type Downloader interface {
	DownloadVideo(ctx context.Context, uri string, w io.Writer) (string, error)
}

type VideosHandler struct {
	Svc *video.Service
	Dl  Downloader
}

func NewVideosHandler(svc *video.Service, dl Downloader) *VideosHandler {
	return &VideosHandler{Svc: svc, Dl: dl}
}

// Create takes a multipart form: image, prompt and aspect_ratio.
func (h *VideosHandler) Create(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	defer f.Close()
	fc, err := filecontext.Read(fh.Filename, f)
	if err != nil || fc.Kind != live.FileImage {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image_required"})
		return
	}

	job, err := h.Svc.Submit(video.Request{
		Prompt:      c.PostForm("prompt"),
		Image:       fc.Data,
		MIMEType:    fc.MIMEType,
		AspectRatio: c.PostForm("aspect_ratio"),
	})
	switch {
	case errors.Is(err, video.ErrAspectRatio):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_aspect_ratio"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "video_unavailable", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *VideosHandler) Get(c *gin.Context) {
	job, err := h.Svc.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Content serves the finished video, fetched upstream with the server key.
func (h *VideosHandler) Content(c *gin.Context) {
	job, err := h.Svc.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if job.Status != video.StatusSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready", "status": job.Status})
		return
	}
	var buf bytes.Buffer
	ct, err := h.Dl.DownloadVideo(c.Request.Context(), job.URI, &buf)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "download_failed"})
		return
	}
	if ct == "" {
		ct = "video/mp4"
	}
	c.Data(http.StatusOK, ct, buf.Bytes())
}
