package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/metrics"
)

const (
	ChatModelFast     = "gemini-2.5-flash-lite"
	ChatModelComplex  = "gemini-3-pro-preview"
	ChatModelSearch   = "gemini-2.5-flash"
	ChatModelThinking = "gemini-3-pro-preview"

	ThinkingBudget = 32768

	noResponse = "I couldn't generate a response."
)

type ChatOptions struct {
	UseSearch   bool `json:"use_search"`
	UseThinking bool `json:"use_thinking"`
}

// ChatMessage is one earlier turn of the conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type GroundingChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type ChatResponse struct {
	Model           string           `json:"model"`
	Text            string           `json:"text"`
	GroundingChunks []GroundingChunk `json:"grounding_chunks,omitempty"`
}

// RouteChat picks the model and generation config for a request. Thinking
// wins over search, search over image analysis.
func RouteChat(attachments []live.FileContext, opts ChatOptions) (string, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(live.TeacherInstruction, genai.RoleUser),
	}
	switch {
	case opts.UseThinking:
		budget := int32(ThinkingBudget)
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
		return ChatModelThinking, cfg
	case opts.UseSearch:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		return ChatModelSearch, cfg
	case hasImage(attachments):
		return ChatModelComplex, cfg
	}
	return ChatModelFast, cfg
}

func hasImage(atts []live.FileContext) bool {
	for _, a := range atts {
		if a.Kind == live.FileImage {
			return true
		}
	}
	return false
}

// ChatContents builds the request: prior turns, then one user turn carrying
// the attachments followed by the new message.
func ChatContents(history []ChatMessage, message string, attachments []live.FileContext) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == string(genai.RoleModel) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	parts := make([]*genai.Part, 0, len(attachments)+1)
	for _, a := range attachments {
		if a.Kind == live.FileImage {
			parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(fmt.Sprintf("[Context from %s]:\n%s\n", a.Name, a.Data)))
	}
	parts = append(parts, genai.NewPartFromText(message))
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

// Chat sends one text turn and returns the reply with any web sources.
func (g *Client) Chat(ctx context.Context, history []ChatMessage, message string, attachments []live.FileContext, opts ChatOptions) (*ChatResponse, error) {
	model, cfg := RouteChat(attachments, opts)
	resp, err := g.generate(ctx, model, ChatContents(history, message, attachments), cfg)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("chat", "error").Inc()
		return nil, fmt.Errorf("gemini: chat: %w", err)
	}
	metrics.UpstreamRequests.WithLabelValues("chat", "ok").Inc()

	out := &ChatResponse{Model: model, Text: resp.Text()}
	if out.Text == "" {
		out.Text = noResponse
	}
	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		for _, ch := range gm.GroundingChunks {
			if ch == nil || ch.Web == nil {
				continue
			}
			out.GroundingChunks = append(out.GroundingChunks, GroundingChunk{URI: ch.Web.URI, Title: ch.Web.Title})
		}
	}
	return out, nil
}
