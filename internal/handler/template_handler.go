package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/response"
)

type templateAPI interface {
	Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.WorkflowTemplate, error)
	Get(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	ListActive(ctx context.Context) ([]models.WorkflowTemplate, error)
	Deactivate(ctx context.Context, id, actorID string) error
}

// TemplateHandler manages workflow templates.
type TemplateHandler struct {
	templates templateAPI
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(templates templateAPI) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// List godoc
// @Summary List active templates
// @Tags Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflow/templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.templates.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, templates)
}

// Create godoc
// @Summary Create a template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.CreateTemplateRequest true "Template definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflow/templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid template payload"))
		return
	}
	tmpl, err := h.templates.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tmpl)
}

// Get godoc
// @Summary Template with its levels
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /workflow/templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	tmpl, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tmpl)
}

// Deactivate godoc
// @Summary Deactivate a template
// @Tags Templates
// @Param id path string true "Template ID"
// @Success 204
// @Router /workflow/templates/{id} [delete]
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.templates.Deactivate(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
