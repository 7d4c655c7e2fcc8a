package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/steveyiyo/livetutor/internal/core/tts"
	"github.com/steveyiyo/livetutor/internal/metrics"
)

const TTSModel = "gemini-2.5-flash-preview-tts"

// Synthesize reads text aloud with a prebuilt voice. The model answers with
// 24kHz mono PCM16.
func (g *Client) Synthesize(ctx context.Context, text, voice string) (*tts.Speech, error) {
	if voice == "" {
		voice = tts.DefaultVoice
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := g.generate(ctx, TTSModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("tts", "error").Inc()
		return nil, fmt.Errorf("gemini: tts: %w", err)
	}
	metrics.UpstreamRequests.WithLabelValues("tts", "ok").Inc()

	data := firstInlineData(resp)
	if data == nil {
		return nil, tts.ErrNoAudio
	}
	return tts.NewSpeech(voice, data)
}

func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}
