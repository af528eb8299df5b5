// Package premium prices insurance instruments. Every function is pure and
// works in exact decimal arithmetic; results are rounded to cents half away
// from zero.
package premium

import (
	"strings"

	"github.com/shopspring/decimal"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
)

// Occupation risk levels for life cover.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// MinIDV is the floor applied to a depreciated insured declared value.
var MinIDV = decimal.NewFromInt(10000)

var (
	depreciationPerMonth = decimal.RequireFromString("0.01")
	taxRate              = decimal.RequireFromString("0.18")
	bikeODRate           = decimal.RequireFromString("0.03")
	carODRate            = decimal.RequireFromString("0.02")

	healthSumRate      = decimal.RequireFromString("0.02")
	healthPerMember    = decimal.NewFromInt(1000)
	healthSmokerLoad   = decimal.NewFromInt(2000)
	healthPreExisting  = decimal.NewFromInt(3000)
	healthSeniorFactor = decimal.RequireFromString("1.2")

	lifeRatePerThousand = decimal.RequireFromString("0.5")
	lifeSmokerFactor    = decimal.RequireFromString("1.3")
	lifeHighRisk        = decimal.RequireFromString("1.4")
	lifeMediumRisk      = decimal.RequireFromString("1.2")
)

// VehicleQuote is the full vehicle pricing breakdown.
type VehicleQuote struct {
	IDV                  decimal.Decimal `json:"idv"`
	ThirdPartyPremium    decimal.Decimal `json:"third_party_premium"`
	OwnDamage            decimal.Decimal `json:"own_damage"`
	Tax                  decimal.Decimal `json:"tax"`
	ComprehensivePremium decimal.Decimal `json:"comprehensive_premium"`
}

// Vehicle prices a bike or car of the given engine capacity and age.
func Vehicle(kind id.InstrumentKind, cc, ageInMonths int) (VehicleQuote, error) {
	var (
		base   decimal.Decimal
		tp     decimal.Decimal
		odRate decimal.Decimal
	)
	switch kind {
	case id.KindBike:
		base = bikeBaseIDV(cc)
		tp = bikeThirdParty(cc)
		odRate = bikeODRate
	case id.KindCar:
		base = carBaseIDV(cc)
		tp = carThirdParty(cc)
		odRate = carODRate
	default:
		return VehicleQuote{}, dErrors.New(dErrors.CodeInvalidInput, messages.Render(messages.VehicleKindInvalid, kind))
	}

	idv := base.Sub(base.Mul(depreciationPerMonth).Mul(decimal.NewFromInt(int64(ageInMonths))))
	if idv.LessThan(MinIDV) {
		idv = MinIDV
	}

	od := idv.Mul(odRate)
	tax := tp.Add(od).Mul(taxRate)
	comprehensive := tp.Add(od).Add(tax)

	return VehicleQuote{
		IDV:                  idv.Round(2),
		ThirdPartyPremium:    tp.Round(2),
		OwnDamage:            od.Round(2),
		Tax:                  tax.Round(2),
		ComprehensivePremium: comprehensive.Round(2),
	}, nil
}

func bikeBaseIDV(cc int) decimal.Decimal {
	switch {
	case cc <= 150:
		return decimal.NewFromInt(50000)
	case cc <= 350:
		return decimal.NewFromInt(80000)
	default:
		return decimal.NewFromInt(120000)
	}
}

func carBaseIDV(cc int) decimal.Decimal {
	switch {
	case cc <= 1000:
		return decimal.NewFromInt(300000)
	case cc <= 1500:
		return decimal.NewFromInt(500000)
	default:
		return decimal.NewFromInt(800000)
	}
}

func bikeThirdParty(cc int) decimal.Decimal {
	switch {
	case cc <= 75:
		return decimal.NewFromInt(538)
	case cc <= 150:
		return decimal.NewFromInt(714)
	case cc <= 350:
		return decimal.NewFromInt(1366)
	default:
		return decimal.NewFromInt(2804)
	}
}

func carThirdParty(cc int) decimal.Decimal {
	switch {
	case cc <= 1000:
		return decimal.NewFromInt(2094)
	case cc <= 1500:
		return decimal.NewFromInt(3221)
	default:
		return decimal.NewFromInt(7897)
	}
}

// Health prices family health cover.
func Health(age, members int, sumInsured decimal.Decimal, smoker, preExisting bool) decimal.Decimal {
	p := sumInsured.Mul(healthSumRate).Add(healthPerMember.Mul(decimal.NewFromInt(int64(members))))
	if smoker {
		p = p.Add(healthSmokerLoad)
	}
	if preExisting {
		p = p.Add(healthPreExisting)
	}
	if age > 50 {
		p = p.Mul(healthSeniorFactor)
	}
	return p.Round(2)
}

// Life prices term life cover. Ages outside [18, 70] are rejected.
func Life(age int, sumAssured decimal.Decimal, termYears int, smoker bool, occupationRisk string) (decimal.Decimal, error) {
	if age < 18 || age > 70 {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, messages.Render(messages.LifeAgeInvalid, age))
	}

	p := sumAssured.Div(decimal.NewFromInt(1000)).
		Mul(lifeRatePerThousand).
		Mul(decimal.NewFromInt(int64(termYears)).Div(decimal.NewFromInt(10)))
	p = p.Mul(lifeAgeFactor(age))
	if smoker {
		p = p.Mul(lifeSmokerFactor)
	}
	switch normalizeRisk(occupationRisk) {
	case RiskHigh:
		p = p.Mul(lifeHighRisk)
	case RiskMedium:
		p = p.Mul(lifeMediumRisk)
	}
	return p.Round(2), nil
}

func lifeAgeFactor(age int) decimal.Decimal {
	switch {
	case age <= 25:
		return decimal.NewFromInt(1)
	case age <= 35:
		return decimal.RequireFromString("1.1")
	case age <= 45:
		return decimal.RequireFromString("1.2")
	case age <= 55:
		return decimal.RequireFromString("1.4")
	case age <= 65:
		return decimal.RequireFromString("1.6")
	default:
		return decimal.NewFromInt(2)
	}
}

func normalizeRisk(risk string) string {
	return strings.ToLower(strings.TrimSpace(risk))
}
