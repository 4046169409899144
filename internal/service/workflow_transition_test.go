package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

func TestApprovalCountIgnoresDuplicatesAndRejections(t *testing.T) {
	records := []models.ApprovalRecord{
		{LevelOrder: 1, ApproverUserID: "a", Approved: true},
		{LevelOrder: 1, ApproverUserID: "a", Approved: true},
		{LevelOrder: 1, ApproverUserID: "b", Approved: false},
		{LevelOrder: 2, ApproverUserID: "c", Approved: true},
	}
	assert.Equal(t, 1, approvalCount(records, 1))
	assert.Equal(t, 1, approvalCount(records, 2))
	assert.True(t, hasDecided(records, 1, "b"))
	assert.False(t, hasDecided(records, 2, "b"))
}

func TestCheckDecidable(t *testing.T) {
	tmpl := twoLevelTemplate()
	instance := models.WorkflowInstance{ID: "i", CurrentLevelOrder: 1, Status: models.InstanceStatusInProgress}

	level, err := checkDecidable(tmpl, instance, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, "lvl-1", level.ID)

	_, err = checkDecidable(nil, instance, nil, "alice")
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	closed := instance
	closed.Status = models.InstanceStatusApproved
	_, err = checkDecidable(tmpl, closed, nil, "alice")
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = checkDecidable(tmpl, instance, []models.ApprovalRecord{{LevelOrder: 1, ApproverUserID: "alice"}}, "alice")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplyDecisionSkipsGapsInOrder(t *testing.T) {
	tmpl := &models.WorkflowTemplate{Levels: []models.WorkflowLevel{
		{Order: 10, RequiredApprovals: 1},
		{Order: 30, RequiredApprovals: 1},
		{Order: 20, RequiredApprovals: 1},
	}}
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	instance := models.WorkflowInstance{ID: "i", CurrentLevelOrder: 10, Status: models.InstanceStatusInProgress}

	result, err := applyDecision(decisionInput{
		Template: tmpl, Instance: instance, Level: tmpl.Levels[0],
		ApproverID: "a", Action: DecisionApprove, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, 20, result.Instance.CurrentLevelOrder)
	assert.True(t, result.Record.Approved)
	assert.Equal(t, now, result.Record.SignedAt)

	last := instance
	last.CurrentLevelOrder = 30
	result, err = applyDecision(decisionInput{
		Template: tmpl, Instance: last, Level: tmpl.Levels[1],
		ApproverID: "a", Action: DecisionApprove, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.Equal(t, models.InstanceStatusApproved, result.Instance.Status)
	require.NotNil(t, result.Instance.ClosedAt)
	assert.Equal(t, now, *result.Instance.ClosedAt)
	assert.Nil(t, instance.ClosedAt)
}

func TestApplyDecisionRejectAndUnknownAction(t *testing.T) {
	tmpl := twoLevelTemplate()
	instance := models.WorkflowInstance{ID: "i", CurrentLevelOrder: 1, Status: models.InstanceStatusInProgress}
	level, _ := tmpl.LevelByOrder(1)

	result, err := applyDecision(decisionInput{Template: tmpl, Instance: instance, Level: *level, ApproverID: "alice", Action: DecisionReject, Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, result.Instance.Status)
	assert.False(t, result.Record.Approved)
	assert.Equal(t, 1, result.Instance.CurrentLevelOrder)

	_, err = applyDecision(decisionInput{Template: tmpl, Instance: instance, Level: *level, Action: "ESCALATE"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
