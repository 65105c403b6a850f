package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachepledge.org/internal/registry"
)

func TestFilterFlags(t *testing.T) {
	f := filterFlags{state: "NSW", search: "creek", startDate: "2026-01-01"}
	got, err := f.filter()
	require.NoError(t, err)
	assert.Equal(t, registry.StateNSW, got.State)
	assert.Equal(t, "creek", got.Search)
	require.NotNil(t, got.From)
	assert.Nil(t, got.To)

	bad := filterFlags{endDate: "yesterday"}
	_, err = bad.filter()
	assert.ErrorIs(t, err, registry.ErrInvalidInput)
}
