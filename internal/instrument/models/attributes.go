package models

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
)

// Attributes are the customer-supplied inputs of an instrument. Computed
// values never appear here; they live on Details.
type Attributes interface {
	InstrumentKind() id.InstrumentKind
	Validate() error
}

// VehicleAttributes describe a bike or a car.
type VehicleAttributes struct {
	Kind               id.InstrumentKind `json:"-"`
	CC                 int               `json:"cc"`
	AgeInMonths        int               `json:"age_in_months"`
	Manufacturer       string            `json:"manufacturer"`
	RegistrationNumber string            `json:"registration_number"`
}

func (a VehicleAttributes) InstrumentKind() id.InstrumentKind { return a.Kind }

// Validate rejects inputs the premium tables cannot price meaningfully.
func (a VehicleAttributes) Validate() error {
	if !a.Kind.IsVehicle() {
		return dErrors.New(dErrors.CodeInvalidInput, messages.Render(messages.VehicleKindInvalid, a.Kind))
	}
	if a.CC <= 0 {
		return dErrors.New(dErrors.CodeValidation, "cc must be positive")
	}
	if a.AgeInMonths < 0 {
		return dErrors.New(dErrors.CodeValidation, "age_in_months must not be negative")
	}
	if strings.TrimSpace(a.RegistrationNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "registration_number is required")
	}
	return nil
}

type HealthAttributes struct {
	Age         int             `json:"age"`
	Members     int             `json:"members"`
	SumInsured  decimal.Decimal `json:"sum_insured"`
	Smoker      bool            `json:"smoker"`
	PreExisting bool            `json:"pre_existing"`
}

func (HealthAttributes) InstrumentKind() id.InstrumentKind { return id.KindHealth }

func (a HealthAttributes) Validate() error {
	if a.Age <= 0 {
		return dErrors.New(dErrors.CodeValidation, "age must be positive")
	}
	if a.Members <= 0 {
		return dErrors.New(dErrors.CodeValidation, "members must be positive")
	}
	if !a.SumInsured.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "sum_insured must be positive")
	}
	return nil
}

type LifeAttributes struct {
	Age            int             `json:"age"`
	Gender         string          `json:"gender"`
	SumAssured     decimal.Decimal `json:"sum_assured"`
	TermYears      int             `json:"term_years"`
	Smoker         bool            `json:"smoker"`
	OccupationRisk string          `json:"occupation_risk"`
}

func (LifeAttributes) InstrumentKind() id.InstrumentKind { return id.KindLife }

// Validate leaves the age range to the premium engine, which owns that rule.
func (a LifeAttributes) Validate() error {
	if !a.SumAssured.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "sum_assured must be positive")
	}
	if a.TermYears <= 0 {
		return dErrors.New(dErrors.CodeValidation, "term_years must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(a.OccupationRisk)) {
	case "", "low", "medium", "high":
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "occupation_risk must be low, medium or high")
	}
}

// DecodeAttributes parses a request body into the attributes of kind and
// validates them.
func DecodeAttributes(kind id.InstrumentKind, raw []byte) (Attributes, error) {
	var attrs Attributes
	switch kind {
	case id.KindBike, id.KindCar:
		var v VehicleAttributes
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
		}
		v.Kind = kind
		attrs = v
	case id.KindHealth:
		var v HealthAttributes
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
		}
		attrs = v
	case id.KindLife:
		var v LifeAttributes
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
		}
		attrs = v
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, messages.Render(messages.VehicleKindInvalid, kind))
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return attrs, nil
}
