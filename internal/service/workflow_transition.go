package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

// DecisionAction distinguishes approvals from rejections.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "APPROVE"
	DecisionReject  DecisionAction = "REJECT"
)

// decisionInput is everything a transition needs from the locked snapshot.
type decisionInput struct {
	Template   *models.WorkflowTemplate
	Instance   models.WorkflowInstance
	Level      models.WorkflowLevel
	Records    []models.ApprovalRecord
	ApproverID string
	Action     DecisionAction
	Comment    *string
	Signature  *string
	Now        time.Time
}

// transitionResult is the next snapshot plus the record to append.
type transitionResult struct {
	Instance      models.WorkflowInstance
	Record        models.ApprovalRecord
	ApprovalCount int
	Advanced      bool
	Closed        bool
}

// checkDecidable resolves the current level and enforces the preconditions shared by approve and reject.
func checkDecidable(tmpl *models.WorkflowTemplate, instance models.WorkflowInstance, records []models.ApprovalRecord, approverID string) (models.WorkflowLevel, error) {
	if instance.Status.Terminal() {
		return models.WorkflowLevel{}, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("workflow instance is %s", instance.Status))
	}
	if tmpl == nil {
		return models.WorkflowLevel{}, appErrors.Clone(appErrors.ErrInvalidState, "workflow template not resolvable")
	}
	level, ok := tmpl.LevelByOrder(instance.CurrentLevelOrder)
	if !ok {
		return models.WorkflowLevel{}, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("level %d not found on template", instance.CurrentLevelOrder))
	}
	if hasDecided(records, level.Order, approverID) {
		return models.WorkflowLevel{}, appErrors.Clone(appErrors.ErrConflict, "approver already decided this level")
	}
	return *level, nil
}

// applyDecision computes the next instance state. It performs no I/O.
func applyDecision(in decisionInput) (transitionResult, error) {
	if in.Instance.Status.Terminal() {
		return transitionResult{}, appErrors.Clone(appErrors.ErrInvalidState, "workflow instance already closed")
	}

	record := models.ApprovalRecord{
		InstanceID:     in.Instance.ID,
		LevelOrder:     in.Level.Order,
		ApproverUserID: in.ApproverID,
		Comment:        in.Comment,
		Signature:      in.Signature,
		SignedAt:       in.Now,
	}
	next := in.Instance
	result := transitionResult{}

	switch in.Action {
	case DecisionReject:
		record.Approved = false
		record.Signature = nil
		next.Status = models.InstanceStatusRejected
		closedAt := in.Now
		next.ClosedAt = &closedAt
		result.Closed = true
		result.ApprovalCount = approvalCount(in.Records, in.Level.Order)
	case DecisionApprove:
		record.Approved = true
		count := approvalCount(in.Records, in.Level.Order) + 1
		result.ApprovalCount = count
		if count >= in.Level.RequiredApprovals {
			if nextOrder, ok := in.Template.NextOrder(in.Level.Order); ok {
				next.CurrentLevelOrder = nextOrder
				result.Advanced = true
			} else {
				next.Status = models.InstanceStatusApproved
				closedAt := in.Now
				next.ClosedAt = &closedAt
				result.Closed = true
			}
		}
	default:
		return transitionResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown decision %q", in.Action))
	}

	result.Instance = next
	result.Record = record
	return result, nil
}

// hasDecided reports whether approverID holds a record of either polarity at order.
func hasDecided(records []models.ApprovalRecord, order int, approverID string) bool {
	for _, r := range records {
		if r.LevelOrder == order && r.ApproverUserID == approverID {
			return true
		}
	}
	return false
}

// approvalCount counts distinct approvers with an approval at order.
func approvalCount(records []models.ApprovalRecord, order int) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.LevelOrder == order && r.Approved {
			seen[r.ApproverUserID] = struct{}{}
		}
	}
	return len(seen)
}
