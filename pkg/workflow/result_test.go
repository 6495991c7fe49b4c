package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultOkValue(t *testing.T) {
	r := Ok(42)
	require.True(t, r.IsOk())
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.NoError(t, r.Error())
}

func TestResultErrHoldsError(t *testing.T) {
	boom := errors.New("boom")
	r := Err[int](boom)
	require.False(t, r.IsOk())
	assert.Equal(t, boom, r.Error())
}

func TestResultErrNilPanics(t *testing.T) {
	assert.Panics(t, func() { Err[int](nil) })
}

func TestAndThenChainsOnSuccess(t *testing.T) {
	r := AndThen(Ok(2), func(v int) Result[string] {
		return Ok("value")
	})
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestAndThenShortCircuitsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	r := AndThen(Err[int](boom), func(v int) Result[string] {
		called = true
		return Ok("unreachable")
	})
	assert.False(t, called)
	assert.Equal(t, boom, r.Error())
}

func TestMapTransformsValue(t *testing.T) {
	r := Map(Ok(21), func(v int) int { return v * 2 })
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestMapPreservesError(t *testing.T) {
	boom := errors.New("boom")
	r := Map(Err[int](boom), func(v int) int { return v * 2 })
	assert.False(t, r.IsOk())
	assert.Equal(t, boom, r.Error())
}

func TestOrElseRecovers(t *testing.T) {
	boom := errors.New("boom")
	r := OrElse(Err[int](boom), func(err error) Result[int] {
		return Ok(7)
	})
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestOrElseSkipsOnSuccess(t *testing.T) {
	called := false
	r := OrElse(Ok(1), func(err error) Result[int] {
		called = true
		return Ok(2)
	})
	assert.False(t, called)
	v, _ := r.Value()
	assert.Equal(t, 1, v)
}

func TestFromError(t *testing.T) {
	r := FromError(5, nil)
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 5, v)

	boom := errors.New("boom")
	r2 := FromError(0, boom)
	assert.Equal(t, boom, r2.Error())
}
