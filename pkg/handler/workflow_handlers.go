package handler

import (
	"log/slog"
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// WorkflowHandler exposes the phase transitions of the negotiation workflow
type WorkflowHandler struct {
	workflow *service.WorkflowService
	logger   *slog.Logger
}

func NewWorkflowHandler(workflow *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow, logger: utils.GetLogger()}
}

// Enter opens the conversation phase. The first entry seeds the AI greeting;
// re-entry returns the existing opener.
func (h *WorkflowHandler) Enter(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	opener, seeded, err := h.workflow.EnterNegotiation(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if seeded {
		status = http.StatusCreated
	}
	c.JSON(status, db.Response{Code: status, Message: "ok", Data: gin.H{"opener": opener, "seeded": seeded}})
}

// View returns the caller's full project snapshot in one response.
func (h *WorkflowHandler) View(c *gin.Context) {
	projectID := c.Param("id")
	user := currentUser(c)
	snapshot, err := h.workflow.RefreshView(c.Request.Context(), projectID, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, snapshot)
}
