package storage

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("documents/doc-1/contract.pdf", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	ok, err := store.Exists("documents/doc-1/contract.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	file, err := store.Open("documents/doc-1/contract.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "%PDF-1.4 body", string(body))

	require.NoError(t, store.Save("certificates/inst-1.pdf", []byte("cert")))
	ok, err = store.Exists("certificates/inst-1.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete("documents/doc-1/contract.pdf"))
	require.NoError(t, store.Delete("documents/doc-1/contract.pdf"))
	_, err = store.Open("documents/doc-1/contract.pdf")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"../secret", "/etc/passwd", "", "a/../../b"} {
		_, err := store.SaveStream(path, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrOutsideRoot, path)
	}
	ok, err := store.Exists("missing.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}
