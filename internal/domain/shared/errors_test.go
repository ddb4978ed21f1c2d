package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorMatching(t *testing.T) {
	err := NewDomainError("ingress", "Submit", ErrOverloaded, "buffer full")

	assert.ErrorIs(t, err, ErrOverloaded)
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "ingress.Submit")
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("store", "SaveSnapshot", ErrPersistenceUnavailable, "write failed", cause)

	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCooldownError(t *testing.T) {
	err := NewCooldownError(400 * time.Second)

	assert.ErrorIs(t, err, ErrCooldown)
	assert.Equal(t, 400*time.Second, err.Remaining)

	var cdErr *CooldownError
	require.True(t, errors.As(error(err), &cdErr))

	clamped := NewCooldownError(-time.Second)
	assert.Equal(t, time.Duration(0), clamped.Remaining)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrPersistenceUnavailable))
	assert.True(t, IsRetryable(ErrOverloaded))
	assert.False(t, IsRetryable(ErrMalformed))
	assert.False(t, IsRetryable(ErrCooldown))
}
