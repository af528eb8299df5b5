package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"coverline/internal/premium"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

// Pricer is the premium engine as seen by instruments.
type Pricer interface {
	Vehicle(ctx context.Context, kind id.InstrumentKind, cc, ageInMonths int) (premium.VehicleQuote, error)
	Health(ctx context.Context, age, members int, sumInsured decimal.Decimal, smoker, preExisting bool) decimal.Decimal
	Life(ctx context.Context, age int, sumAssured decimal.Decimal, termYears int, smoker bool, occupationRisk string) (decimal.Decimal, error)
}

// Details pairs an instrument's inputs with the values priced from them.
// Only Price and UnmarshalDetails construct Details, so computed fields can
// never drift from their inputs.
type Details interface {
	Attributes() Attributes
	// Premium is the amount payable: the comprehensive premium for vehicles.
	Premium() decimal.Decimal
	sealed()
}

type VehicleDetails struct {
	attrs         VehicleAttributes
	idv           decimal.Decimal
	thirdParty    decimal.Decimal
	comprehensive decimal.Decimal
}

func (d *VehicleDetails) Attributes() Attributes                { return d.attrs }
func (d *VehicleDetails) Premium() decimal.Decimal              { return d.comprehensive }
func (d *VehicleDetails) Vehicle() VehicleAttributes            { return d.attrs }
func (d *VehicleDetails) IDV() decimal.Decimal                  { return d.idv }
func (d *VehicleDetails) ThirdPartyPremium() decimal.Decimal    { return d.thirdParty }
func (d *VehicleDetails) ComprehensivePremium() decimal.Decimal { return d.comprehensive }
func (*VehicleDetails) sealed()                                 {}

type HealthDetails struct {
	attrs   HealthAttributes
	premium decimal.Decimal
}

func (d *HealthDetails) Attributes() Attributes   { return d.attrs }
func (d *HealthDetails) Premium() decimal.Decimal { return d.premium }
func (d *HealthDetails) Health() HealthAttributes { return d.attrs }
func (*HealthDetails) sealed()                    {}

type LifeDetails struct {
	attrs   LifeAttributes
	premium decimal.Decimal
}

func (d *LifeDetails) Attributes() Attributes   { return d.attrs }
func (d *LifeDetails) Premium() decimal.Decimal { return d.premium }
func (d *LifeDetails) Life() LifeAttributes     { return d.attrs }
func (*LifeDetails) sealed()                    {}

// Price runs attrs through the premium engine.
func Price(ctx context.Context, pricer Pricer, attrs Attributes) (Details, error) {
	switch a := attrs.(type) {
	case VehicleAttributes:
		q, err := pricer.Vehicle(ctx, a.Kind, a.CC, a.AgeInMonths)
		if err != nil {
			return nil, err
		}
		return &VehicleDetails{
			attrs:         a,
			idv:           q.IDV,
			thirdParty:    q.ThirdPartyPremium,
			comprehensive: q.ComprehensivePremium,
		}, nil
	case HealthAttributes:
		p := pricer.Health(ctx, a.Age, a.Members, a.SumInsured, a.Smoker, a.PreExisting)
		return &HealthDetails{attrs: a, premium: p}, nil
	case LifeAttributes:
		p, err := pricer.Life(ctx, a.Age, a.SumAssured, a.TermYears, a.Smoker, a.OccupationRisk)
		if err != nil {
			return nil, err
		}
		return &LifeDetails{attrs: a, premium: p}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported attributes %T", attrs))
	}
}

type vehicleJSON struct {
	VehicleAttributes
	IDV                  decimal.Decimal `json:"idv"`
	ThirdPartyPremium    decimal.Decimal `json:"third_party_premium"`
	ComprehensivePremium decimal.Decimal `json:"comprehensive_premium"`
}

type healthJSON struct {
	HealthAttributes
	Premium decimal.Decimal `json:"premium"`
}

type lifeJSON struct {
	LifeAttributes
	Premium decimal.Decimal `json:"premium"`
}

func (d *VehicleDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(vehicleJSON{
		VehicleAttributes:    d.attrs,
		IDV:                  d.idv,
		ThirdPartyPremium:    d.thirdParty,
		ComprehensivePremium: d.comprehensive,
	})
}

func (d *HealthDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(healthJSON{HealthAttributes: d.attrs, Premium: d.premium})
}

func (d *LifeDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(lifeJSON{LifeAttributes: d.attrs, Premium: d.premium})
}

// UnmarshalDetails restores persisted details for kind. The computed values
// are taken as stored; they were produced by Price when the record was written.
func UnmarshalDetails(kind id.InstrumentKind, raw []byte) (Details, error) {
	switch kind {
	case id.KindBike, id.KindCar:
		var v vehicleJSON
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode vehicle details: %w", err)
		}
		v.Kind = kind
		return &VehicleDetails{
			attrs:         v.VehicleAttributes,
			idv:           v.IDV,
			thirdParty:    v.ThirdPartyPremium,
			comprehensive: v.ComprehensivePremium,
		}, nil
	case id.KindHealth:
		var v healthJSON
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode health details: %w", err)
		}
		return &HealthDetails{attrs: v.HealthAttributes, premium: v.Premium}, nil
	case id.KindLife:
		var v lifeJSON
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode life details: %w", err)
		}
		return &LifeDetails{attrs: v.LifeAttributes, premium: v.Premium}, nil
	default:
		return nil, fmt.Errorf("unknown instrument kind %q", kind)
	}
}
