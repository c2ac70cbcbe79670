package api

import (
	"net/http"

	"warehouse-service/internal/service"

	"github.com/gin-gonic/gin"
)

// login exchanges credentials for a bearer token, also returned in the Authorization header
func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	token, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Authorization", "Bearer "+token.AccessToken)
	c.JSON(http.StatusOK, token)
}
