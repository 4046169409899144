package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateOrderNavigation(t *testing.T) {
	tmpl := WorkflowTemplate{Levels: []WorkflowLevel{{Order: 20}, {Order: 5}, {Order: 10}}}

	first, ok := tmpl.FirstOrder()
	require.True(t, ok)
	assert.Equal(t, 5, first)

	next, ok := tmpl.NextOrder(5)
	require.True(t, ok)
	assert.Equal(t, 10, next)

	next, ok = tmpl.NextOrder(10)
	require.True(t, ok)
	assert.Equal(t, 20, next)

	_, ok = tmpl.NextOrder(20)
	assert.False(t, ok)

	level, ok := tmpl.LevelByOrder(10)
	require.True(t, ok)
	assert.Equal(t, 10, level.Order)
	_, ok = tmpl.LevelByOrder(7)
	assert.False(t, ok)

	_, ok = (&WorkflowTemplate{}).FirstOrder()
	assert.False(t, ok)
}

func TestInstanceStatusTerminal(t *testing.T) {
	assert.False(t, InstanceStatusInProgress.Terminal())
	assert.True(t, InstanceStatusApproved.Terminal())
	assert.True(t, InstanceStatusRejected.Terminal())
	assert.True(t, InstanceStatusCancelled.Terminal())
}
