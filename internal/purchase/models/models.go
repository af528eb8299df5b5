// Package models holds the purchase record: one user bound to exactly one
// instrument for a date range.
package models

import (
	"encoding/json"
	"strings"
	"time"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

// DateLayout is the wire format of purchase and expiry dates.
const DateLayout = "2006-01-02"

// Status is the stored purchase state. EXPIRED is never stored; see
// Purchase.EffectiveStatus.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// ParseStatus accepts the stored states. CONFIRMED is accepted as a legacy
// spelling of ACTIVE.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StatusActive), "CONFIRMED":
		return StatusActive, nil
	case string(StatusCancelled):
		return StatusCancelled, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purchase status: "+s)
	}
}

// InstrumentRef names the single instrument a purchase covers.
type InstrumentRef struct {
	Kind id.InstrumentKind `json:"kind"`
	ID   id.InstrumentID   `json:"id"`
}

func NewInstrumentRef(kind id.InstrumentKind, instrumentID id.InstrumentID) (InstrumentRef, error) {
	if !kind.IsValid() {
		return InstrumentRef{}, dErrors.New(dErrors.CodeInvalidInput, "invalid instrument kind: "+string(kind))
	}
	if instrumentID.IsNil() {
		return InstrumentRef{}, dErrors.New(dErrors.CodeInvalidInput, "instrument id is required")
	}
	return InstrumentRef{Kind: kind, ID: instrumentID}, nil
}

// Slots is the wire shape of an instrument reference: four optional ids of
// which exactly one must be set.
type Slots struct {
	BikeID   string `json:"bike_id,omitempty"`
	CarID    string `json:"car_id,omitempty"`
	HealthID string `json:"health_id,omitempty"`
	LifeID   string `json:"life_id,omitempty"`
}

// IsEmpty reports whether no slot is set.
func (s Slots) IsEmpty() bool {
	return strings.TrimSpace(s.BikeID+s.CarID+s.HealthID+s.LifeID) == ""
}

// Ref parses the slots into an InstrumentRef.
func (s Slots) Ref() (InstrumentRef, error) {
	candidates := []struct {
		kind id.InstrumentKind
		raw  string
	}{
		{id.KindBike, s.BikeID},
		{id.KindCar, s.CarID},
		{id.KindHealth, s.HealthID},
		{id.KindLife, s.LifeID},
	}
	var (
		ref   InstrumentRef
		found int
	)
	for _, c := range candidates {
		raw := strings.TrimSpace(c.raw)
		if raw == "" {
			continue
		}
		found++
		instrumentID, err := id.ParseInstrumentID(raw)
		if err != nil {
			return InstrumentRef{}, err
		}
		ref = InstrumentRef{Kind: c.kind, ID: instrumentID}
	}
	if found != 1 {
		return InstrumentRef{}, dErrors.New(dErrors.CodeValidation, "exactly one of bike_id, car_id, health_id or life_id is required")
	}
	return ref, nil
}

// SlotsFor renders ref back into its wire slot.
func SlotsFor(ref InstrumentRef) Slots {
	switch ref.Kind {
	case id.KindBike:
		return Slots{BikeID: ref.ID.String()}
	case id.KindCar:
		return Slots{CarID: ref.ID.String()}
	case id.KindHealth:
		return Slots{HealthID: ref.ID.String()}
	case id.KindLife:
		return Slots{LifeID: ref.ID.String()}
	default:
		return Slots{}
	}
}

type Purchase struct {
	ID           id.PurchaseID
	UserID       id.UserID
	Instrument   InstrumentRef
	PurchaseDate time.Time
	ExpiryDate   time.Time
	Status       Status
}

// New builds an ACTIVE purchase. Dates are truncated to UTC calendar days.
func New(purchaseID id.PurchaseID, userID id.UserID, ref InstrumentRef, purchaseDate, expiryDate time.Time) *Purchase {
	return &Purchase{
		ID:           purchaseID,
		UserID:       userID,
		Instrument:   ref,
		PurchaseDate: Day(purchaseDate),
		ExpiryDate:   Day(expiryDate),
		Status:       StatusActive,
	}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsExpired reports whether the purchase ran out before today. Cancelled
// purchases are never reported as expired.
func (p *Purchase) IsExpired(today time.Time) bool {
	return p.Status == StatusActive && p.ExpiryDate.Before(Day(today))
}

// IsActive reports ACTIVE and not yet expired.
func (p *Purchase) IsActive(today time.Time) bool {
	return p.Status == StatusActive && !p.ExpiryDate.Before(Day(today))
}

// EffectiveStatus is the stored status with EXPIRED derived on top.
func (p *Purchase) EffectiveStatus(today time.Time) Status {
	if p.IsExpired(today) {
		return StatusExpired
	}
	return p.Status
}

// Cancel marks the purchase CANCELLED and reports whether anything changed.
func (p *Purchase) Cancel() bool {
	if p.Status == StatusCancelled {
		return false
	}
	p.Status = StatusCancelled
	return true
}

type purchaseJSON struct {
	ID             id.PurchaseID     `json:"id"`
	UserID         id.UserID         `json:"user_id"`
	InstrumentKind id.InstrumentKind `json:"instrument_kind"`
	Slots
	PurchaseDate string `json:"purchase_date"`
	ExpiryDate   string `json:"expiry_date"`
	Status       Status `json:"status"`
}

func (p *Purchase) MarshalJSON() ([]byte, error) {
	return json.Marshal(purchaseJSON{
		ID:             p.ID,
		UserID:         p.UserID,
		InstrumentKind: p.Instrument.Kind,
		Slots:          SlotsFor(p.Instrument),
		PurchaseDate:   p.PurchaseDate.Format(DateLayout),
		ExpiryDate:     p.ExpiryDate.Format(DateLayout),
		Status:         p.Status,
	})
}
