package ziperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchErrorEmptyIsNil(t *testing.T) {
	assert.NoError(t, NewBatchError("refresh", nil))
}

func TestNewBatchErrorSingleIsUnwrapped(t *testing.T) {
	inner := errors.New("boom")
	err := NewBatchError("refresh", []error{inner})
	assert.Same(t, inner, err)
}

func TestNewBatchErrorMultipleAggregates(t *testing.T) {
	a := &RepoError{Alias: "oss", Kind: RepoNotFound}
	b := &ServiceError{Alias: "svc", Kind: ServiceNoAlias}
	err := NewBatchError("refresh", []error{a, b})

	var repoErr *RepoError
	assert.True(t, errors.As(err, &repoErr))
	assert.Equal(t, "oss", repoErr.Alias)

	var svcErr *ServiceError
	assert.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "svc", svcErr.Alias)

	assert.Contains(t, err.Error(), "refresh: 2 errors")
}
