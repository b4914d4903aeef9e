package handler

import (
	"log/slog"
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// ProjectHandler provides HTTP handlers for project operations
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: utils.GetLogger()}
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req db.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	project, err := h.projects.CreateProject(c.Request.Context(), currentUser(c).ID, &req)
	if err != nil {
		h.logger.Error("Failed to create project", "title", req.Title, "error", err)
		writeError(c, err)
		return
	}
	created(c, project)
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.ListProjects(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, projects)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.GetProject(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, project)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req db.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	project, err := h.projects.UpdateProject(c.Request.Context(), c.Param("id"), currentUser(c).ID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.DeleteProject(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
		h.logger.Warn("Project deletion refused", "projectId", c.Param("id"), "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, db.Response{Code: 200, Message: "deleted"})
}

func (h *ProjectHandler) ListMembers(c *gin.Context) {
	members, err := h.projects.ListMembers(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, members)
}
