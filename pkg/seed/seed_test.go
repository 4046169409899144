package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

const sampleSeed = `
fileTypes:
  - name: PDF
    mime: application/pdf
    extensions: [pdf]
  - name: Word
    mime: application/msword
    extensions: [doc]
templates:
  - name: Purchase order
    levels:
      - order: 1
        approverType: users
        userIds: [alice]
        requiredApprovals: 1
        allowedFileTypes: [.pdf]
      - order: 2
        approverType: expression
        approverExpression: 'user in ["bob", "carol"]'
        requiredApprovals: 1
grants:
  - userId: alice
    mime: application/pdf
`

type catalogStub struct {
	items []models.FileType
}

func (s *catalogStub) List(ctx context.Context) ([]models.FileType, error) {
	return s.items, nil
}

func (s *catalogStub) Create(ctx context.Context, req dto.CreateFileTypeRequest) (*models.FileType, error) {
	ft := models.FileType{ID: "ft-" + req.Name, Name: req.Name, Mime: strings.ToLower(req.Mime)}
	s.items = append(s.items, ft)
	return &ft, nil
}

type templatesStub struct {
	names map[string]bool
}

func (s *templatesStub) Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.WorkflowTemplate, error) {
	if s.names[req.Name] {
		return nil, appErrors.Clone(appErrors.ErrConflict, "template name already exists")
	}
	s.names[req.Name] = true
	return &models.WorkflowTemplate{ID: "tmpl-1", Name: req.Name, CreatedBy: actorID}, nil
}

type grantsStub struct {
	grants map[string]bool
}

func (s *grantsStub) Grant(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) (bool, error) {
	key := req.UserID + "/" + req.FileTypeID
	if s.grants[key] {
		return false, nil
	}
	s.grants[key] = true
	return true, nil
}

func TestDecodeSeed(t *testing.T) {
	file, err := Decode(strings.NewReader(sampleSeed))
	require.NoError(t, err)
	require.Len(t, file.FileTypes, 2)
	require.Len(t, file.Templates, 1)
	levels := file.Templates[0].Levels
	require.Len(t, levels, 2)
	assert.Equal(t, []string{"alice"}, levels[0].UserIDs)
	require.NotNil(t, levels[1].ApproverExpression)
	assert.Equal(t, `user in ["bob", "carol"]`, *levels[1].ApproverExpression)
	assert.Equal(t, []Grant{{UserID: "alice", Mime: "application/pdf"}}, file.Grants)

	_, err = Decode(strings.NewReader("fileTypes:\n  - nmae: typo\n"))
	assert.Error(t, err)

	empty, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Templates)
}

func TestSeederApplyIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))
	file, err := LoadFile(path)
	require.NoError(t, err)

	catalog := &catalogStub{items: []models.FileType{{ID: "ft-existing", Mime: "application/msword"}}}
	seeder := NewSeeder(catalog, &templatesStub{names: map[string]bool{}}, &grantsStub{grants: map[string]bool{}}, "", nil)

	first, err := seeder.Apply(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, Result{FileTypes: 1, Templates: 1, Grants: 1}, first)

	second, err := seeder.Apply(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)
}

func TestSeederApplyUnknownGrantMime(t *testing.T) {
	seeder := NewSeeder(&catalogStub{}, &templatesStub{names: map[string]bool{}}, &grantsStub{grants: map[string]bool{}}, "seed", nil)
	_, err := seeder.Apply(context.Background(), &File{Grants: []Grant{{UserID: "alice", Mime: "image/png"}}})
	assert.Error(t, err)
}
