package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/response"
)

type permissionAPI interface {
	Grant(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) (bool, error)
	Revoke(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) error
	ListByUser(ctx context.Context, userID string) ([]models.UserFileTypePermission, error)
}

// PermissionHandler exposes admin grant management.
type PermissionHandler struct {
	permissions permissionAPI
}

// NewPermissionHandler constructs the handler.
func NewPermissionHandler(permissions permissionAPI) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// Grant godoc
// @Summary Grant a file type to a user
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.FileTypePermissionRequest true "Grant"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "already granted"
// @Router /admin/grant-filetype [post]
func (h *PermissionHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FileTypePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid permission payload"))
		return
	}
	created, err := h.permissions.Grant(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, req, map[string]interface{}{"created": created})
}

// Revoke godoc
// @Summary Revoke a file type from a user
// @Tags Admin
// @Accept json
// @Param payload body dto.FileTypePermissionRequest true "Grant to remove"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/revoke-filetype [delete]
func (h *PermissionHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FileTypePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid permission payload"))
		return
	}
	if err := h.permissions.Revoke(c.Request.Context(), req, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListForUser godoc
// @Summary File types granted to a user
// @Tags Admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /admin/user-permissions/{userId} [get]
func (h *PermissionHandler) ListForUser(c *gin.Context) {
	perms, err := h.permissions.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, perms)
}
