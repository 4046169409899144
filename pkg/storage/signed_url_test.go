package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("doc-1", "documents/doc-1/contract.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "documents/doc-1/contract.pdf", path)
	assert.True(t, expiresAt.Equal(parsedExpiry))
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	issued := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issued }
	token, _, err := signer.Generate("doc-1", "documents/doc-1/a.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, _, _, err = signer.Parse(token, false)
	assert.ErrorIs(t, err, ErrTokenExpired)

	id, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "documents/doc-1/a.pdf", path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("doc-1", "documents/doc-1/a.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "doc-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = signer.Parse("garbage", false)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerGenerateValidation(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Generate("doc-1", "a.pdf")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Generate("doc.1", "a.pdf")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Generate("doc-1", "")
	assert.Error(t, err)
}
