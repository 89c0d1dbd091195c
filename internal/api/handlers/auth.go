package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/walink/walink/internal/crypto"
	"github.com/walink/walink/pkg/types"
)

type AuthHandler struct {
	accessKey  string
	jwtManager *crypto.JWTManager
}

func NewAuthHandler(accessKey string, jwtManager *crypto.JWTManager) *AuthHandler {
	return &AuthHandler{
		accessKey:  accessKey,
		jwtManager: jwtManager,
	}
}

// PostAuth handles POST /v1/auth: exchanges the operator access key for a
// bearer token.
func (h *AuthHandler) PostAuth(c *gin.Context) {
	var req types.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(h.accessKey)) != 1 {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid access key"})
		return
	}

	token, err := h.jwtManager.CreateToken("operator")
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, types.AuthResponse{Success: true, Token: token})
}
