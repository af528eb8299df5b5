package domain

import (
	"strings"

	dErrors "coverline/pkg/domain-errors"
)

// InstrumentKind names one of the four insurable instrument families.
// Invariant: the value must be one of the supported kinds.
//
// Usage: construct via ParseInstrumentKind at trust boundaries; direct casting
// bypasses validation.
type InstrumentKind string

const (
	KindBike   InstrumentKind = "bike"
	KindCar    InstrumentKind = "car"
	KindHealth InstrumentKind = "health"
	KindLife   InstrumentKind = "life"
)

var validInstrumentKinds = map[InstrumentKind]bool{
	KindBike:   true,
	KindCar:    true,
	KindHealth: true,
	KindLife:   true,
}

// AllInstrumentKinds lists the kinds in a stable order.
func AllInstrumentKinds() []InstrumentKind {
	return []InstrumentKind{KindBike, KindCar, KindHealth, KindLife}
}

// ParseInstrumentKind constructs an InstrumentKind from external input.
// Matching is case-insensitive.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "instrument kind cannot be empty")
	}
	k := InstrumentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid instrument kind")
	}
	return k, nil
}

func (k InstrumentKind) IsValid() bool {
	return validInstrumentKinds[k]
}

// IsVehicle reports whether the kind is priced by the vehicle tariff.
func (k InstrumentKind) IsVehicle() bool {
	return k == KindBike || k == KindCar
}

func (k InstrumentKind) String() string {
	return string(k)
}
