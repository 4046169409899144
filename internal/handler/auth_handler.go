package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/response"
)

type tokenIssuer interface {
	IssueToken(userID string, role models.UserRole) (string, time.Time, error)
}

// AuthHandler exposes token issuance for local development and tests.
type AuthHandler struct {
	tokens    tokenIssuer
	validator *validator.Validate
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(tokens tokenIssuer) *AuthHandler {
	return &AuthHandler{tokens: tokens, validator: validator.New()}
}

// IssueToken godoc
// @Summary Issue a development token
// @Description Mint a bearer token for any user id and role. Not registered in production.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.IssueTokenRequest true "Identity"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}

	token, expiresAt, err := h.tokens.IssueToken(req.UserID, models.UserRole(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
