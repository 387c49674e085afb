package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := New(CodeBusinessRule, "offer is not active")
	assert.True(t, HasCode(err, CodeBusinessRule))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeBusinessRule))
	assert.False(t, HasCode(nil, CodeBusinessRule))
}

func TestHasCodeThroughWrapping(t *testing.T) {
	inner := New(CodeNotFound, "offer not found")
	outer := fmt.Errorf("purchase shares: %w", inner)
	assert.True(t, HasCode(outer, CodeNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "offer store unreachable")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Contains(t, err.Error(), "offer store unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWithDetail(t *testing.T) {
	err := New(CodeBusinessRule, "insufficient shares remaining").
		WithDetail("requested", "8").
		WithDetail("available", "5")
	assert.Equal(t, "8", err.Detail["requested"])
	assert.Equal(t, "5", err.Detail["available"])
}
