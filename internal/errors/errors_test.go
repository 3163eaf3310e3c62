package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBasics(t *testing.T) {
	base := stderrors.New("disk on fire")
	err := New(base).
		Component("stream").
		Category(CategoryDriver).
		Context("port_id", int32(5)).
		Build()

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	assert.Equal(t, "disk on fire", err.Error())
	assert.Equal(t, "stream", ee.Component)
	assert.Equal(t, CategoryDriver, ee.Category)
	assert.Equal(t, int32(5), ee.GetContext()["port_id"])
	assert.True(t, Is(err, base))
}

func TestNilErrBuildsSentinel(t *testing.T) {
	err := New(nil).
		Category(CategoryNotFound).
		Context("resource", "port").
		Build()

	assert.Equal(t, "not-found: port", err.Error())
	assert.True(t, IsNotFound(err))
}

func TestNilErrWithoutResource(t *testing.T) {
	err := New(nil).Category(CategoryConflict).Build()
	assert.Equal(t, "conflict", err.Error())
	assert.True(t, IsConflict(err))
}

func TestCategoryInheritedFromWrapped(t *testing.T) {
	sentinel := New(nil).
		Category(CategoryState).
		Context("resource", "port config in use").
		Build()

	wrapped := New(sentinel).
		Context("config_id", int32(8)).
		Build()

	assert.True(t, IsState(wrapped))
	assert.True(t, Is(wrapped, sentinel))
	assert.Equal(t, int32(8), wrapped.(*EnhancedError).GetContext()["config_id"])
}

func TestCategoryOverrideWins(t *testing.T) {
	inner := New(nil).Category(CategoryValidation).Build()
	outer := New(inner).Category(CategoryLimit).Build()
	assert.True(t, IsCategory(outer, CategoryLimit))
	assert.False(t, IsValidation(outer))
}

func TestDefaultCategoryIsGeneric(t *testing.T) {
	err := New(stderrors.New("boom")).Build()
	assert.True(t, IsCategory(err, CategoryGeneric))
}

func TestCategoryHelpersOnPlainErrors(t *testing.T) {
	plain := stderrors.New("plain")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsValidation(plain))
	assert.False(t, IsConflict(plain))
	assert.False(t, IsState(plain))
	assert.False(t, IsNotFound(nil))
}

func TestGetContextReturnsCopy(t *testing.T) {
	err := Newf("bad value %d", 7).Context("k", "v").Build()

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestIsMatchesByCategoryTarget(t *testing.T) {
	err := New(stderrors.New("whatever")).Category(CategoryRouting).Build()
	target := &EnhancedError{Category: CategoryRouting}
	assert.True(t, stderrors.Is(err, target))

	other := &EnhancedError{Category: CategoryChannel}
	assert.False(t, stderrors.Is(err, other))
}
