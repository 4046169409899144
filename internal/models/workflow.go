package models

import (
	"time"

	"github.com/lib/pq"
)

// InstanceStatus captures the lifecycle of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "IN_PROGRESS"
	InstanceStatusApproved   InstanceStatus = "APPROVED"
	InstanceStatusRejected   InstanceStatus = "REJECTED"
	// InstanceStatusCancelled is reserved; no transition produces it yet.
	InstanceStatusCancelled InstanceStatus = "CANCELLED"
)

// Terminal reports whether no further decisions may be recorded.
func (s InstanceStatus) Terminal() bool {
	return s != InstanceStatusInProgress
}

// Approver type tags understood by the built-in strategies.
const (
	ApproverTypeUsers      = "Users"
	ApproverTypeDepartment = "Department"
	ApproverTypeExpression = "Expression"
)

// WorkflowTemplate is a reusable, ordered approval path.
type WorkflowTemplate struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	CreatedBy   string          `db:"created_by" json:"createdBy"`
	IsActive    bool            `db:"is_active" json:"isActive"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
	Levels      []WorkflowLevel `db:"-" json:"levels"`
}

// LevelByOrder returns the level with the given order.
func (t *WorkflowTemplate) LevelByOrder(order int) (*WorkflowLevel, bool) {
	for i := range t.Levels {
		if t.Levels[i].Order == order {
			return &t.Levels[i], true
		}
	}
	return nil, false
}

// FirstOrder returns the smallest level order.
func (t *WorkflowTemplate) FirstOrder() (int, bool) {
	if len(t.Levels) == 0 {
		return 0, false
	}
	first := t.Levels[0].Order
	for _, level := range t.Levels[1:] {
		if level.Order < first {
			first = level.Order
		}
	}
	return first, true
}

// NextOrder returns the smallest order strictly greater than current.
func (t *WorkflowTemplate) NextOrder(current int) (int, bool) {
	found := false
	next := 0
	for _, level := range t.Levels {
		if level.Order > current && (!found || level.Order < next) {
			next = level.Order
			found = true
		}
	}
	return next, found
}

// WorkflowLevel is one approval step of a template.
type WorkflowLevel struct {
	ID                 string         `db:"id" json:"id"`
	TemplateID         string         `db:"template_id" json:"templateId"`
	Order              int            `db:"level_order" json:"order"`
	ApproverType       string         `db:"approver_type" json:"approverType"`
	DepartmentID       *string        `db:"department_id" json:"departmentId,omitempty"`
	UserIDs            pq.StringArray `db:"user_ids" json:"userIds"`
	ApproverExpression *string        `db:"approver_expression" json:"approverExpression,omitempty"`
	RequiredApprovals  int            `db:"required_approvals" json:"requiredApprovals"`
	AllowedFileTypes   pq.StringArray `db:"allowed_file_types" json:"allowedFileTypes"`
}

// WorkflowInstance is a single run of a template over one document.
type WorkflowInstance struct {
	ID                string         `db:"id" json:"id"`
	TemplateID        string         `db:"template_id" json:"templateId"`
	DocumentID        string         `db:"document_id" json:"documentId"`
	CurrentLevelOrder int            `db:"current_level_order" json:"currentLevelOrder"`
	Status            InstanceStatus `db:"status" json:"status"`
	RequestedBy       string         `db:"requested_by" json:"requestedBy"`
	RequestedAt       time.Time      `db:"requested_at" json:"requestedAt"`
	ClosedAt          *time.Time     `db:"closed_at" json:"closedAt,omitempty"`
	Version           int            `db:"version" json:"version"`
}

// ApprovalRecord is an immutable decision by one approver at one level.
type ApprovalRecord struct {
	ID             string    `db:"id" json:"id"`
	InstanceID     string    `db:"instance_id" json:"instanceId"`
	LevelOrder     int       `db:"level_order" json:"levelOrder"`
	ApproverUserID string    `db:"approver_user_id" json:"approverUserId"`
	Approved       bool      `db:"approved" json:"approved"`
	Comment        *string   `db:"comment" json:"comment,omitempty"`
	Signature      *string   `db:"signature" json:"signature,omitempty"`
	SignedAt       time.Time `db:"signed_at" json:"signedAt"`
}

// WorkflowInstanceDetail bundles an instance with its ordered history.
type WorkflowInstanceDetail struct {
	WorkflowInstance
	History []ApprovalRecord `json:"history"`
}
