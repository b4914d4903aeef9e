package handler

import (
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/gin-gonic/gin"
)

// EstateHandler provides HTTP handlers for estate reference data
type EstateHandler struct {
	estates  *service.EstateService
	projects *service.ProjectService
}

func NewEstateHandler(estates *service.EstateService, projects *service.ProjectService) *EstateHandler {
	return &EstateHandler{estates: estates, projects: projects}
}

func (h *EstateHandler) Register(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.projects.Membership(c.Request.Context(), projectID, currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	var req db.RegisterEstateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	estate, err := h.estates.RegisterEstate(c.Request.Context(), projectID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, estate)
}

func (h *EstateHandler) List(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.projects.Membership(c.Request.Context(), projectID, currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	estates, err := h.estates.ListEstates(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, estates)
}

func (h *EstateHandler) Update(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.projects.Membership(c.Request.Context(), projectID, currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	var req db.UpdateEstateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	estate, err := h.estates.UpdateEstate(c.Request.Context(), projectID, c.Param("estateId"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, estate)
}

func (h *EstateHandler) Delete(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.projects.Membership(c.Request.Context(), projectID, currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.estates.DeleteEstate(c.Request.Context(), projectID, c.Param("estateId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, db.Response{Code: 200, Message: "deleted"})
}
