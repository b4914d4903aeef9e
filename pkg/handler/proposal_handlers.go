package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// ProposalHandler provides HTTP handlers for proposal generation and curation
type ProposalHandler struct {
	proposals *service.ProposalService
	workflow  *service.WorkflowService
	projects  *service.ProjectService
	logger    *slog.Logger
}

func NewProposalHandler(proposals *service.ProposalService, workflow *service.WorkflowService, projects *service.ProjectService) *ProposalHandler {
	return &ProposalHandler{
		proposals: proposals,
		workflow:  workflow,
		projects:  projects,
		logger:    utils.GetLogger(),
	}
}

// Generate runs proposal generation for the caller. Guarded against
// double-submits.
func (h *ProposalHandler) Generate(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	proposals, err := h.workflow.GenerateProposals(c.Request.Context(), projectID, user.ID)
	if err != nil {
		h.logger.Warn("Proposal generation failed", "projectId", projectID, "userId", user.ID, "error", err)
		writeError(c, err)
		return
	}
	ok(c, proposals)
}

// Compare scores the caller's proposals against each other and names the
// recommended one. The body is optional; an empty one compares everything on
// the default criteria.
func (h *ProposalHandler) Compare(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	var req db.CompareProposalsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	comparison, err := h.proposals.CompareProposals(c.Request.Context(), projectID, user.ID, &req)
	if err != nil {
		h.logger.Warn("Proposal comparison failed", "projectId", projectID, "userId", user.ID, "error", err)
		writeError(c, err)
		return
	}
	ok(c, comparison)
}

func (h *ProposalHandler) List(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	proposals, err := h.proposals.ListProposals(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, proposals)
}

func (h *ProposalHandler) Get(c *gin.Context) {
	proposal, err := h.proposals.GetProposal(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, proposal)
}

func (h *ProposalHandler) Update(c *gin.Context) {
	var req db.UpdateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	proposal, err := h.proposals.UpdateProposal(c.Request.Context(), c.Param("id"), currentUser(c).ID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, proposal)
}

func (h *ProposalHandler) ToggleFavorite(c *gin.Context) {
	proposal, err := h.proposals.ToggleFavorite(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, proposal)
}

func (h *ProposalHandler) Delete(c *gin.Context) {
	if err := h.proposals.DeleteProposal(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
		h.logger.Warn("Proposal deletion refused", "proposalId", c.Param("id"), "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, db.Response{Code: 200, Message: "deleted"})
}
