package handler

import (
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/gin-gonic/gin"
)

// contextUserKey holds the resolved *db.User for the request.
const contextUserKey = "aigree.user"

// Identity resolves the authenticated user from the X-User-ID header set by
// the fronting identity provider. Requests without a resolvable identity are
// rejected before reaching any handler.
func Identity(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				db.Response{Code: 401, Message: "missing X-User-ID header"})
			return
		}
		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				db.Response{Code: 401, Message: "unknown user"})
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// currentUser returns the user resolved by the Identity middleware.
func currentUser(c *gin.Context) *db.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*db.User)
	return user
}
