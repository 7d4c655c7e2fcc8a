package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/livetutor/internal/core/gemini"
	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/pkg/types"
)

type Chatter interface {
	Chat(ctx context.Context, history []gemini.ChatMessage, message string, attachments []live.FileContext, opts gemini.ChatOptions) (*gemini.ChatResponse, error)
}

type ChatHandler struct {
	Chat Chatter
}

func NewChatHandler(c Chatter) *ChatHandler {
	return &ChatHandler{Chat: c}
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req types.ChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	history := make([]gemini.ChatMessage, len(req.History))
	for i, m := range req.History {
		history[i] = gemini.ChatMessage{Role: m.Role, Text: m.Text}
	}
	atts := make([]live.FileContext, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		kind := live.FileText
		if a.Type == string(live.FileImage) {
			kind = live.FileImage
		}
		atts = append(atts, live.FileContext{Name: a.Name, Kind: kind, Data: a.Data, MIMEType: a.MIMEType})
	}

	resp, err := h.Chat.Chat(c.Request.Context(), history, req.Message, atts, gemini.ChatOptions{
		UseSearch:   req.UseSearch,
		UseThinking: req.UseThinking,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat_failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
