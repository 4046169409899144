package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/internal/service"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/response"
)

type workflowEngine interface {
	Start(ctx context.Context, templateID, documentID, requestedBy string) (*models.WorkflowInstanceDetail, error)
	Approve(ctx context.Context, instanceID, approverID string, req dto.ApproveRequest) (*models.WorkflowInstanceDetail, error)
	Reject(ctx context.Context, instanceID, approverID string, req dto.RejectRequest) (*models.WorkflowInstanceDetail, error)
	GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstanceDetail, error)
	ListPendingApprovalsForUser(ctx context.Context, userID string) ([]dto.PendingApprovalItem, error)
	ListApprovers(ctx context.Context, instanceID string) (*dto.InstanceApproversResponse, error)
}

type workflowExporter interface {
	HistoryCSV(ctx context.Context, instanceID string) ([]byte, string, error)
	OpenCertificate(ctx context.Context, instanceID string) (*service.CertificateFile, error)
}

// WorkflowHandler exposes instance lifecycle endpoints.
type WorkflowHandler struct {
	engine  workflowEngine
	exports workflowExporter
}

// NewWorkflowHandler constructs the handler. exports may be nil when exports are disabled.
func NewWorkflowHandler(engine workflowEngine, exports workflowExporter) *WorkflowHandler {
	return &WorkflowHandler{engine: engine, exports: exports}
}

// Start godoc
// @Summary Start a workflow instance
// @Tags Workflow
// @Accept json
// @Produce json
// @Param templateId path string true "Template ID"
// @Param payload body dto.StartWorkflowRequest true "Document to approve"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /workflow/{templateId}/start [post]
func (h *WorkflowHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid start payload"))
		return
	}
	detail, err := h.engine.Start(c.Request.Context(), c.Param("templateId"), req.DocumentID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Approve godoc
// @Summary Approve the current level as the caller
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.ApproveRequest false "Comment and signature"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /workflow/instances/{id}/approve [post]
func (h *WorkflowHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApproveRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.engine.Approve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Reject godoc
// @Summary Reject the instance as the caller
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.RejectRequest false "Comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /workflow/instances/{id}/reject [post]
func (h *WorkflowHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.engine.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Get godoc
// @Summary Instance with decision history
// @Tags Workflow
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /workflow/instances/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	detail, err := h.engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Approvers godoc
// @Summary Users who may still decide at the current level
// @Tags Workflow
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /workflow/instances/{id}/approvers [get]
func (h *WorkflowHandler) Approvers(c *gin.Context) {
	approvers, err := h.engine.ListApprovers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, approvers)
}

// Pending godoc
// @Summary Instances awaiting the caller's decision
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflow/pending-approvals [get]
func (h *WorkflowHandler) Pending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.engine.ListPendingApprovalsForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// HistoryCSV godoc
// @Summary Download the decision history as CSV
// @Tags Workflow
// @Produce text/csv
// @Param id path string true "Instance ID"
// @Success 200 {file} file
// @Router /workflow/instances/{id}/history.csv [get]
func (h *WorkflowHandler) HistoryCSV(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports not configured"))
		return
	}
	payload, filename, err := h.exports.HistoryCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}

// Certificate godoc
// @Summary Download the approval certificate
// @Tags Workflow
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /workflow/instances/{id}/certificate [get]
func (h *WorkflowHandler) Certificate(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "certificates are disabled"))
		return
	}
	cert, err := h.exports.OpenCertificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cert.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cert.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, cert.SizeBytes, "application/pdf", cert.File, nil)
}
