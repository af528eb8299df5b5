package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

func newClaim() *Claim {
	return New(id.NewClaimID(), id.NewUserID(), id.NewPurchaseID(), time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, st)

	_, err = ParseStatus("SETTLED")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStatus))
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr dErrors.Code
	}{
		{name: "pending to approved", from: StatusPending, to: StatusApproved},
		{name: "pending to rejected", from: StatusPending, to: StatusRejected},
		{name: "pending stays pending", from: StatusPending, to: StatusPending},
		{name: "approved is final", from: StatusApproved, to: StatusRejected, wantErr: dErrors.CodeTerminalState},
		{name: "rejected is final", from: StatusRejected, to: StatusPending, wantErr: dErrors.CodeTerminalState},
		{name: "same terminal status is still refused", from: StatusRejected, to: StatusRejected, wantErr: dErrors.CodeTerminalState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClaim()
			c.Status = tt.from

			err := c.Transition(tt.to)
			if tt.wantErr != "" {
				assert.True(t, dErrors.HasCode(err, tt.wantErr), "got %v", err)
				assert.Equal(t, tt.from, c.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, c.Status)
		})
	}
}

func TestCanWithdraw(t *testing.T) {
	c := newClaim()
	assert.NoError(t, c.CanWithdraw())

	require.NoError(t, c.Transition(StatusApproved))
	assert.True(t, dErrors.HasCode(c.CanWithdraw(), dErrors.CodeNotPending))
}
