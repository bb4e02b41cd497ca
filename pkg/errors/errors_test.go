package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("boom")

	err := New(CategoryBuild, "copy-source", "copy failed", cause)
	assert.Equal(t, "slipway/copy-source: copy failed: boom", err.Error())

	noCause := Newf(CategoryConfig, "recipe", "port %d out of range", 99999)
	assert.Equal(t, "slipway/recipe: port 99999 out of range", noCause.Error())

	noOp := New(CategoryIO, "", "short write", nil)
	assert.Equal(t, "slipway: short write", noOp.Error())
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("underlying")
	err := New(CategoryResolve, "basefetch", "tag not found", cause)

	require.True(t, stderrors.Is(err, cause))

	wrapped := fmt.Errorf("build aborted: %w", err)
	var e *Error
	require.True(t, stderrors.As(wrapped, &e))
	assert.Equal(t, CategoryResolve, e.Category)
}

func TestIsMatchesByCategoryAndOp(t *testing.T) {
	err := New(CategoryRuntime, "start", "already running", nil)

	assert.True(t, stderrors.Is(err, &Error{Category: CategoryRuntime}))
	assert.True(t, stderrors.Is(err, &Error{Category: CategoryRuntime, Op: "start"}))
	assert.False(t, stderrors.Is(err, &Error{Category: CategoryRuntime, Op: "stop"}))
	assert.False(t, stderrors.Is(err, &Error{Category: CategoryBuild}))
}

func TestIsCategoryWalksChain(t *testing.T) {
	inner := New(CategoryManifest, "parse", "bad requirement", nil)
	outer := New(CategoryBuild, "install-deps", "stage failed", inner)

	assert.True(t, IsCategory(outer, CategoryBuild))
	assert.True(t, IsCategory(outer, CategoryManifest))
	assert.False(t, IsCategory(outer, CategoryRuntime))
	assert.False(t, IsCategory(stderrors.New("plain"), CategoryBuild))
}

func TestWrapNilCause(t *testing.T) {
	assert.Nil(t, Wrap(CategoryIO, "store", "save", nil))
}

func TestRetryable(t *testing.T) {
	err := &Error{Category: CategoryRuntime, Op: "health", Message: "port not bound yet", Retryable: true}
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(New(CategoryBuild, "commit", "tar failed", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}
