package cerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	err := New(CodeCacheIO, "flush failed", nil)
	assert.Equal(t, CategoryIO, err.Category)
	assert.Equal(t, SeverityWarning, err.Severity)
	assert.True(t, err.Retryable)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeCacheIO, nil))
}

func TestWrap_PreservesMessageAndCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	wrapped := Wrap(CodeMetadataIO, cause)
	require.NotNil(t, wrapped)
	assert.Equal(t, "disk full", wrapped.Message)
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestError_Error_IncludesCode(t *testing.T) {
	err := New(CodeInvalidInput, "bad slot", nil)
	assert.Contains(t, err.Error(), CodeInvalidInput)
	assert.Contains(t, err.Error(), "bad slot")
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(CodeCacheIO, "first", nil)
	b := New(CodeCacheIO, "second", nil)
	c := New(CodeMetadataIO, "third", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(CodeInvalidInput, "bad", nil).WithDetail("slot", "5")
	assert.Equal(t, "5", err.Details["slot"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeEmbeddingUnavailable, "", nil)))
	assert.False(t, IsRetryable(New(CodeInvalidInput, "", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestIsRetryable_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", New(CodeCacheIO, "io", nil))
	assert.True(t, IsRetryable(wrapped))
}
