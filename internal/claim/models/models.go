// Package models holds the claim aggregate and its transition table.
package models

import (
	"strings"
	"time"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
)

// Status is the claim decision state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus accepts the three known statuses, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidStatus, messages.Render(messages.ClaimStatusInvalid, s))
	}
}

// IsTerminal reports whether no further change is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Claim struct {
	ID         id.ClaimID    `json:"id"`
	UserID     id.UserID     `json:"user_id"`
	PurchaseID id.PurchaseID `json:"purchase_id"`
	Status     Status        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// New builds a PENDING claim.
func New(claimID id.ClaimID, userID id.UserID, purchaseID id.PurchaseID, now time.Time) *Claim {
	return &Claim{
		ID:         claimID,
		UserID:     userID,
		PurchaseID: purchaseID,
		Status:     StatusPending,
		CreatedAt:  now,
	}
}

// Transition moves the claim to next. Terminal claims never change.
func (c *Claim) Transition(next Status) error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeTerminalState, messages.Render(messages.ClaimStatusFinal, c.ID, c.Status))
	}
	c.Status = next
	return nil
}

// CanWithdraw reports whether the claim may still be deleted by its owner.
func (c *Claim) CanWithdraw() error {
	if c.Status != StatusPending {
		return dErrors.New(dErrors.CodeNotPending, messages.Render(messages.ClaimDeleteNotPending, c.ID, c.Status))
	}
	return nil
}
