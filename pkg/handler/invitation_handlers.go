package handler

import (
	"log/slog"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// InvitationHandler provides HTTP handlers for heir onboarding
type InvitationHandler struct {
	invitations *service.InvitationService
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, logger: utils.GetLogger()}
}

// Create issues a new invitation token. Owner only.
func (h *InvitationHandler) Create(c *gin.Context) {
	var req db.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	invitation, err := h.invitations.CreateInvitation(c.Request.Context(), currentUser(c).ID, &req)
	if err != nil {
		h.logger.Warn("Invitation creation failed", "projectId", req.ProjectID, "error", err)
		writeError(c, err)
		return
	}
	// The token is returned once at creation so the owner can share the
	// link; list responses never include it.
	created(c, gin.H{"invitation": invitation, "token": invitation.Token})
}

// Accept previews what an invitation link offers before the invitee commits.
func (h *InvitationHandler) Accept(c *gin.Context) {
	preview, err := h.invitations.Preview(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, preview)
}

// Complete redeems the token for the authenticated caller.
func (h *InvitationHandler) Complete(c *gin.Context) {
	member, err := h.invitations.Complete(c.Request.Context(), c.Param("token"), currentUser(c))
	if err != nil {
		h.logger.Warn("Invitation redemption failed", "error", err)
		writeError(c, err)
		return
	}
	ok(c, member)
}

// List returns a project's invitations. Owner only.
func (h *InvitationHandler) List(c *gin.Context) {
	invitations, err := h.invitations.ListInvitations(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, invitations)
}
