package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/response"
)

type fileTypeAPI interface {
	Create(ctx context.Context, req dto.CreateFileTypeRequest) (*models.FileType, error)
	Get(ctx context.Context, id string) (*models.FileType, error)
	List(ctx context.Context) ([]models.FileType, error)
	Delete(ctx context.Context, id string) error
}

// FileTypeHandler exposes the file type catalog.
type FileTypeHandler struct {
	fileTypes fileTypeAPI
}

// NewFileTypeHandler constructs the handler.
func NewFileTypeHandler(fileTypes fileTypeAPI) *FileTypeHandler {
	return &FileTypeHandler{fileTypes: fileTypes}
}

// List godoc
// @Summary List file types
// @Tags FileTypes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /filetypes [get]
func (h *FileTypeHandler) List(c *gin.Context) {
	items, err := h.fileTypes.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Create godoc
// @Summary Register a file type
// @Tags FileTypes
// @Accept json
// @Produce json
// @Param payload body dto.CreateFileTypeRequest true "File type"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /filetypes [post]
func (h *FileTypeHandler) Create(c *gin.Context) {
	var req dto.CreateFileTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid file type payload"))
		return
	}
	item, err := h.fileTypes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Get godoc
// @Summary Get a file type
// @Tags FileTypes
// @Produce json
// @Param id path string true "File type ID"
// @Success 200 {object} response.Envelope
// @Router /filetypes/{id} [get]
func (h *FileTypeHandler) Get(c *gin.Context) {
	item, err := h.fileTypes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Delete godoc
// @Summary Delete a file type
// @Tags FileTypes
// @Param id path string true "File type ID"
// @Success 204
// @Router /filetypes/{id} [delete]
func (h *FileTypeHandler) Delete(c *gin.Context) {
	if err := h.fileTypes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
