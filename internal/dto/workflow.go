package dto

import (
	"time"

	"github.com/noah-isme/docflow-api/internal/models"
)

// StartWorkflowRequest opens a new instance of a template over a document.
type StartWorkflowRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
}

// ApproveRequest carries an approving decision.
type ApproveRequest struct {
	Comment   string `json:"comment" validate:"max=2000"`
	Signature string `json:"signature" validate:"max=4096"`
}

// RejectRequest carries a rejecting decision.
type RejectRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// PendingApprovalItem describes an instance awaiting the caller's decision.
type PendingApprovalItem struct {
	InstanceID        string    `json:"instanceId"`
	TemplateID        string    `json:"templateId"`
	TemplateName      string    `json:"templateName"`
	DocumentID        string    `json:"documentId"`
	CurrentLevelOrder int       `json:"currentLevelOrder"`
	RequiredApprovals int       `json:"requiredApprovals"`
	ApprovalCount     int       `json:"approvalCount"`
	RequestedBy       string    `json:"requestedBy"`
	RequestedAt       time.Time `json:"requestedAt"`
}

// InstanceApproversResponse lists who may still decide at the current level.
type InstanceApproversResponse struct {
	InstanceID string   `json:"instanceId"`
	LevelOrder int      `json:"levelOrder"`
	Approvers  []string `json:"approvers"`
}

// CreateTemplateRequest defines a new template and its frozen levels.
type CreateTemplateRequest struct {
	Name        string               `json:"name" yaml:"name" validate:"required,max=200"`
	Description string               `json:"description" yaml:"description" validate:"max=2000"`
	Levels      []CreateLevelRequest `json:"levels" yaml:"levels" validate:"required,min=1,dive"`
}

// CreateLevelRequest describes one level of a new template.
type CreateLevelRequest struct {
	Order              int      `json:"order" yaml:"order"`
	ApproverType       string   `json:"approverType" yaml:"approverType" validate:"required"`
	DepartmentID       *string  `json:"departmentId,omitempty" yaml:"departmentId"`
	UserIDs            []string `json:"userIds" yaml:"userIds"`
	ApproverExpression *string  `json:"approverExpression,omitempty" yaml:"approverExpression"`
	RequiredApprovals  int      `json:"requiredApprovals" yaml:"requiredApprovals" validate:"gte=1"`
	AllowedFileTypes   []string `json:"allowedFileTypes" yaml:"allowedFileTypes"`
}

// CreateFileTypeRequest registers a catalog entry.
type CreateFileTypeRequest struct {
	Name       string   `json:"name" yaml:"name" validate:"required,max=100"`
	Mime       string   `json:"mime" yaml:"mime" validate:"required,max=255"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

// FileTypePermissionRequest grants or revokes a file type for a user.
type FileTypePermissionRequest struct {
	UserID     string `json:"userId" validate:"required"`
	FileTypeID string `json:"fileTypeId" validate:"required"`
}

// DocumentResponse exposes document metadata with a signed download link.
type DocumentResponse struct {
	models.Document
	DownloadURL string `json:"downloadUrl,omitempty"`
}
