package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    OrgStatus
		to      OrgStatus
		allowed bool
	}{
		{OrgStatusPending, OrgStatusTrial, true},
		{OrgStatusPending, OrgStatusActive, true},
		{OrgStatusPending, OrgStatusCancelled, true},
		{OrgStatusPending, OrgStatusSuspended, false},
		{OrgStatusTrial, OrgStatusActive, true},
		{OrgStatusTrial, OrgStatusCancelled, true},
		{OrgStatusTrial, OrgStatusSuspended, false},
		{OrgStatusTrial, OrgStatusPending, false},
		{OrgStatusActive, OrgStatusSuspended, true},
		{OrgStatusActive, OrgStatusCancelled, true},
		{OrgStatusActive, OrgStatusTrial, false},
		{OrgStatusSuspended, OrgStatusActive, true},
		{OrgStatusSuspended, OrgStatusCancelled, true},
		{OrgStatusSuspended, OrgStatusTrial, false},
		// Cancelled is absorbing
		{OrgStatusCancelled, OrgStatusActive, false},
		{OrgStatusCancelled, OrgStatusPending, false},
		{OrgStatusCancelled, OrgStatusTrial, false},
		{OrgStatusCancelled, OrgStatusSuspended, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(OrgStatusTrial, OrgStatusActive))

	err := ValidateTransition(OrgStatusCancelled, OrgStatusActive)
	require.Error(t, err)
	assert.True(t, IsInvalidStatusTransition(err))

	transitionErr, ok := err.(*InvalidStatusTransitionError)
	require.True(t, ok)
	assert.Equal(t, OrgStatusCancelled, transitionErr.From)
	assert.Equal(t, OrgStatusActive, transitionErr.To)
}
