package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := New("endpoint not registered")
	wrapped := Wrapf(cause, "setWeight %s", "10.0.0.1:9001")

	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "setWeight 10.0.0.1:9001")
	assert.Contains(t, wrapped.Error(), "endpoint not registered")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "no-op"))
}

func TestWithMessagePreservesIsMatch(t *testing.T) {
	sentinel := New("unknown endpoint")
	wrapped := WithMessage(sentinel, "context")
	assert.True(t, Is(wrapped, sentinel))
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf("bad weight %d for %s", -1, "10.0.0.1:9001")
	assert.Equal(t, "bad weight -1 for 10.0.0.1:9001", err.Error())
}
