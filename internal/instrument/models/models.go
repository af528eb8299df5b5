// Package models holds the instrument aggregate: a priced, insurable item
// that moves from PENDING to CONFIRMED when bound into a purchase, and to
// CANCELLED when withdrawn.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

// Status is the instrument lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid instrument status: "+s)
	}
}

type Instrument struct {
	ID         id.InstrumentID
	Kind       id.InstrumentKind
	UserID     id.UserID
	Status     Status
	PurchaseID *id.PurchaseID
	Details    Details
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New builds a PENDING instrument from priced details.
func New(instrumentID id.InstrumentID, owner id.UserID, details Details, now time.Time) *Instrument {
	return &Instrument{
		ID:        instrumentID,
		Kind:      details.Attributes().InstrumentKind(),
		UserID:    owner,
		Status:    StatusPending,
		Details:   details,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Bind links the instrument to a purchase and confirms it. A second bind
// overwrites the previous link.
func (i *Instrument) Bind(purchaseID id.PurchaseID, now time.Time) {
	i.PurchaseID = &purchaseID
	i.Status = StatusConfirmed
	i.UpdatedAt = now
}

// Cancel marks the instrument CANCELLED and reports whether anything changed.
func (i *Instrument) Cancel(now time.Time) bool {
	if i.Status == StatusCancelled {
		return false
	}
	i.Status = StatusCancelled
	i.UpdatedAt = now
	return true
}

// Reprice replaces inputs and computed values together.
func (i *Instrument) Reprice(details Details, now time.Time) {
	i.Details = details
	i.UpdatedAt = now
}

// IsUnbound reports whether the instrument is still a draft with no purchase.
func (i *Instrument) IsUnbound() bool {
	return i.Status == StatusPending && i.PurchaseID == nil
}

func (i *Instrument) Premium() decimal.Decimal {
	if i.Details == nil {
		return decimal.Zero
	}
	return i.Details.Premium()
}

type instrumentJSON struct {
	ID         id.InstrumentID   `json:"id"`
	Kind       id.InstrumentKind `json:"kind"`
	UserID     id.UserID         `json:"user_id"`
	Status     Status            `json:"status"`
	PurchaseID *id.PurchaseID    `json:"purchase_id,omitempty"`
	Details    Details           `json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (i *Instrument) MarshalJSON() ([]byte, error) {
	return json.Marshal(instrumentJSON(*i))
}
