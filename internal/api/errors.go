package api

import (
	"errors"
	"net/http"

	"warehouse-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a service error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrPersistence):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes {"detail": msg}. Unclassified errors never leak their text.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)

	var svcErr *service.Error
	if status == http.StatusInternalServerError || !errors.As(err, &svcErr) {
		h.logger.Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	c.JSON(status, gin.H{"detail": svcErr.Message})
}
