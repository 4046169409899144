package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "docflow", nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "workflow:template:t-1", models.WorkflowTemplate{ID: "t-1"}, time.Minute))

	var tmpl models.WorkflowTemplate
	err := repo.Get(ctx, "workflow:template:t-1", &tmpl)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Delete(ctx, "workflow:template:t-1"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryKeyNamespace(t *testing.T) {
	assert.Equal(t, "docflow:workflow:template:t-1", NewCacheRepository(nil, "docflow", nil).key("workflow:template:t-1"))
	assert.Equal(t, "workflow:template:t-1", NewCacheRepository(nil, "", nil).key("workflow:template:t-1"))
}
