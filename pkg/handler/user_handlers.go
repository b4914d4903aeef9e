package handler

import (
	"log/slog"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// UserHandler provides HTTP handlers for user registration and lookup
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users, logger: utils.GetLogger()}
}

// Register creates the local row for an authenticated account. Registering
// the same account again returns the existing row.
func (h *UserHandler) Register(c *gin.Context) {
	var req db.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid user registration request", "error", err, "clientIP", c.ClientIP())
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	user, err := h.users.RegisterUser(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to register user", "email", req.Email, "error", err)
		writeError(c, err)
		return
	}
	created(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) GetByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		badRequest(c, "email query parameter is required")
		return
	}
	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, user)
}

// Me returns the caller's own user row.
func (h *UserHandler) Me(c *gin.Context) {
	ok(c, currentUser(c))
}
