package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollaborator_WrapsUnknownErrors(t *testing.T) {
	base := errors.New("connection refused")

	err := Collaborator("save account", base)

	var ce *CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "save account", ce.Op)
	assert.Equal(t, "connection refused", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestCollaborator_PassesDomainErrors(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", ErrNotFound)

	err := Collaborator("find account", wrapped)

	var ce *CollaboratorError
	assert.False(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollaborator_DoesNotDoubleWrap(t *testing.T) {
	first := Collaborator("upload", errors.New("s3 down"))
	second := Collaborator("register", first)

	var ce *CollaboratorError
	require.True(t, errors.As(second, &ce))
	assert.Equal(t, "upload", ce.Op)
}

func TestCollaborator_Nil(t *testing.T) {
	assert.NoError(t, Collaborator("noop", nil))
}

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(ErrInvalidOrExpiredOTP))
	assert.True(t, IsDomain(fmt.Errorf("x: %w", ErrMissingFields)))
	assert.False(t, IsDomain(errors.New("boom")))
}

func TestNarrowErrors(t *testing.T) {
	assert.ErrorIs(t, ErrMissingCredentials, ErrMissingFields)
	assert.ErrorIs(t, ErrInvalidOrExpiredResetOTP, ErrInvalidOrExpiredOTP)
	assert.NotErrorIs(t, ErrInvalidOrExpiredOTP, ErrInvalidOrExpiredResetOTP)
	assert.True(t, IsDomain(ErrMissingCredentials))
	assert.True(t, IsDomain(ErrInvalidOrExpiredResetOTP))
}
