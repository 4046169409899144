package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

type fileTypeStoreStub struct {
	items     []models.FileType
	created   []*models.FileType
	createErr error
	listErr   error
}

func (s *fileTypeStoreStub) Create(ctx context.Context, fileType *models.FileType) error {
	if s.createErr != nil {
		return s.createErr
	}
	fileType.ID = "ft-new"
	s.created = append(s.created, fileType)
	return nil
}

func (s *fileTypeStoreStub) GetByID(ctx context.Context, id string) (*models.FileType, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fileTypeStoreStub) List(ctx context.Context) ([]models.FileType, error) {
	return s.items, s.listErr
}

func (s *fileTypeStoreStub) Delete(ctx context.Context, id string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func catalogFixture() *fileTypeStoreStub {
	return &fileTypeStoreStub{items: []models.FileType{
		{ID: "ft-word", Name: "Word", Mime: "application/msword", Extensions: pq.StringArray{"doc", "pdf"}},
		{ID: "ft-pdf", Name: "PDF", Mime: "application/pdf", Extensions: pq.StringArray{"pdf"}},
		{ID: "ft-img", Name: "JPEG", Mime: "image/jpeg", Extensions: pq.StringArray{".jpg", "JPEG"}},
	}}
}

func TestFileTypeServiceFindPrefersMime(t *testing.T) {
	svc := NewFileTypeService(catalogFixture(), nil, nil)

	found, err := svc.FindByMimeOrExtension(context.Background(), "APPLICATION/PDF", "doc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ft-pdf", found.ID)

	found, err = svc.FindByMimeOrExtension(context.Background(), "application/octet-stream", ".pdf")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ft-word", found.ID, "first extension hit wins")

	found, err = svc.FindByMimeOrExtension(context.Background(), "", "jpeg")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ft-img", found.ID)

	found, err = svc.FindByMimeOrExtension(context.Background(), "text/plain", "txt")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFileTypeServiceFindPropagatesErrors(t *testing.T) {
	svc := NewFileTypeService(&fileTypeStoreStub{listErr: errors.New("boom")}, nil, nil)
	_, err := svc.FindByMimeOrExtension(context.Background(), "application/pdf", "pdf")
	require.Error(t, err)
}

func TestFileTypeServiceCreateNormalises(t *testing.T) {
	repo := &fileTypeStoreStub{}
	svc := NewFileTypeService(repo, nil, nil)

	fileType, err := svc.Create(context.Background(), dto.CreateFileTypeRequest{
		Name:       " Spreadsheet ",
		Mime:       " Application/VND.ms-excel ",
		Extensions: []string{".XLS", "xls", " ", "xlsx"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Spreadsheet", fileType.Name)
	assert.Equal(t, "application/vnd.ms-excel", fileType.Mime)
	assert.Equal(t, []string{"xls", "xlsx"}, []string(fileType.Extensions))

	_, err = svc.Create(context.Background(), dto.CreateFileTypeRequest{Name: "x"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	repo.createErr = &pq.Error{Code: "23505"}
	_, err = svc.Create(context.Background(), dto.CreateFileTypeRequest{Name: "dup", Mime: "application/pdf"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFileTypeServiceGetAndDeleteNotFound(t *testing.T) {
	svc := NewFileTypeService(catalogFixture(), nil, nil)

	_, err := svc.Get(context.Background(), "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(svc.Delete(context.Background(), "nope")).Code)
	assert.NoError(t, svc.Delete(context.Background(), "ft-pdf"))
}
