package handler

import (
	"log/slog"
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// IssueHandler provides HTTP handlers for issue extraction and curation
type IssueHandler struct {
	issues   *service.IssueService
	workflow *service.WorkflowService
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewIssueHandler(issues *service.IssueService, workflow *service.WorkflowService, projects *service.ProjectService) *IssueHandler {
	return &IssueHandler{
		issues:   issues,
		workflow: workflow,
		projects: projects,
		logger:   utils.GetLogger(),
	}
}

// Extract re-derives the caller's issue set from their conversation log.
// Guarded: a second request while one runs gets 429.
func (h *IssueHandler) Extract(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	issues, err := h.workflow.ExtractIssues(c.Request.Context(), projectID, user.ID)
	if err != nil {
		h.logger.Warn("Issue extraction failed", "projectId", projectID, "userId", user.ID, "error", err)
		writeError(c, err)
		return
	}
	ok(c, issues)
}

func (h *IssueHandler) List(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	if _, err := h.projects.Membership(c.Request.Context(), projectID, user.ID); err != nil {
		writeError(c, err)
		return
	}
	if c.Query("grouped") == "true" {
		groups, err := h.issues.GroupedIssues(c.Request.Context(), projectID, user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, groups)
		return
	}
	issues, err := h.issues.ListIssues(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, issues)
}

func (h *IssueHandler) Update(c *gin.Context) {
	var req db.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	issue, err := h.issues.UpdateIssue(c.Request.Context(), c.Param("issueId"), currentUser(c).ID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, issue)
}

func (h *IssueHandler) Delete(c *gin.Context) {
	if err := h.issues.DeleteIssue(c.Request.Context(), c.Param("issueId"), currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, db.Response{Code: 200, Message: "deleted"})
}
