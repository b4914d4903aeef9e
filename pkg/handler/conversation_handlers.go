package handler

import (
	"log/slog"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// ConversationHandler provides HTTP handlers for the negotiation dialogue
type ConversationHandler struct {
	conversation *service.ConversationService
	projects     *service.ProjectService
	logger       *slog.Logger
}

func NewConversationHandler(conversation *service.ConversationService, projects *service.ProjectService) *ConversationHandler {
	return &ConversationHandler{
		conversation: conversation,
		projects:     projects,
		logger:       utils.GetLogger(),
	}
}

// ListMessages returns the caller's view of the conversation: their own
// utterances plus the AI speaker's.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	messages, err := h.conversation.ListMessages(c.Request.Context(), projectID, &user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, messages)
}

// Append records one utterance without asking for an AI reply.
func (h *ConversationHandler) Append(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	member, err := h.projects.Membership(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	var req db.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	speaker := req.Speaker
	if speaker == "" {
		speaker = member.Name
	}
	msg, err := h.conversation.AppendMessage(c.Request.Context(), projectID, &user.ID, speaker, req.Content, req.Sentiment)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, msg)
}

// Reply records the utterance and returns it together with the AI response.
func (h *ConversationHandler) Reply(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	member, err := h.projects.Membership(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	var req db.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	userMsg, aiMsg, err := h.conversation.Reply(c.Request.Context(), projectID, user.ID, member.Name, req.Content, req.WithSentiment)
	if err != nil {
		h.logger.Error("Failed to produce reply", "projectId", projectID, "error", err)
		writeError(c, err)
		return
	}
	ok(c, gin.H{"message": userMsg, "reply": aiMsg})
}

// SentimentSummary aggregates sentiment over the caller's utterances.
func (h *ConversationHandler) SentimentSummary(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	summary, err := h.conversation.SentimentSummary(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, summary)
}
