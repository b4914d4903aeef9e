package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// progressPushInterval is how often signing progress is pushed to clients.
const progressPushInterval = 5 * time.Second

// SigningWSHandler streams signing progress over a websocket so every
// member's screen converges on the shared consensus state without polling.
type SigningWSHandler struct {
	signatures *service.SignatureService
	users      *service.UserService
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewSigningWSHandler(signatures *service.SignatureService, users *service.UserService) *SigningWSHandler {
	return &SigningWSHandler{
		signatures: signatures,
		users:      users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: utils.GetLogger(),
	}
}

// Stream upgrades the connection and pushes the agreement's signing progress
// every five seconds until the client disconnects. Browsers cannot set
// custom headers on websocket dials, so identity also comes from the
// user_id query parameter.
func (h *SigningWSHandler) Stream(c *gin.Context) {
	agreementID := c.Param("id")

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if _, err := h.users.GetUser(c.Request.Context(), userID); err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// Membership is checked before the upgrade so a non-member gets a plain
	// HTTP status instead of an open socket.
	if _, err := h.signatures.Progress(c.Request.Context(), agreementID, userID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "agreementId", agreementID, "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	ticker := time.NewTicker(progressPushInterval)
	defer ticker.Stop()

	push := func() bool {
		progress, err := h.signatures.Progress(ctx, agreementID, userID)
		if err != nil {
			h.logger.Warn("Failed to read signing progress", "agreementId", agreementID, "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "progress unavailable"),
				time.Now().Add(time.Second))
			return false
		}
		if err := conn.WriteJSON(progress); err != nil {
			return false
		}
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}
