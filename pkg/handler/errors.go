package handler

import (
	"errors"
	"net/http"

	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/gin-gonic/gin"
)

// statusFor maps service sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNameMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrAlreadySigned):
		return http.StatusConflict
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrExtractionFailed), errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	c.JSON(status, db.Response{Code: status, Message: err.Error()})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, db.Response{Code: 200, Message: "ok", Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, db.Response{Code: 201, Message: "created", Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, db.Response{Code: 400, Message: msg})
}
