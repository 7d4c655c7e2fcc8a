package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/genai"

	"github.com/steveyiyo/livetutor/internal/core/video"
	"github.com/steveyiyo/livetutor/internal/metrics"
)

const VideoModel = "veo-3.1-fast-generate-preview"

var ErrNoVideo = errors.New("gemini: no video uri returned")

// GenerateVideo animates an image and polls the operation until it is done.
// The returned uri needs the api key to download, see DownloadVideo.
func (g *Client) GenerateVideo(ctx context.Context, req video.Request) (string, error) {
	op, err := g.c.Models.GenerateVideos(ctx, VideoModel, req.Prompt,
		&genai.Image{ImageBytes: req.Image, MIMEType: req.MIMEType},
		&genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			Resolution:     "720p",
			AspectRatio:    req.AspectRatio,
		})
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("video", "error").Inc()
		return "", fmt.Errorf("gemini: generate video: %w", err)
	}
	for !op.Done {
		if !sleepCtx(ctx, g.pollEvery) {
			return "", ctx.Err()
		}
		op, err = g.c.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("video", "error").Inc()
			return "", fmt.Errorf("gemini: poll video: %w", err)
		}
		g.log.Debug("polled video operation", "name", op.Name, "done", op.Done)
	}
	if op.Error != nil {
		metrics.UpstreamRequests.WithLabelValues("video", "error").Inc()
		return "", fmt.Errorf("gemini: video operation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		metrics.UpstreamRequests.WithLabelValues("video", "error").Inc()
		return "", ErrNoVideo
	}
	metrics.UpstreamRequests.WithLabelValues("video", "ok").Inc()
	return op.Response.GeneratedVideos[0].Video.URI, nil
}

// DownloadVideo streams a generated video into w, authenticating with the
// client's key.
func (g *Client) DownloadVideo(ctx context.Context, uri string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: download video: status %d", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}
