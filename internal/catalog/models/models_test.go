package models

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

func validAttributes() Attributes {
	return Attributes{
		Name:         "Family Floater",
		Type:         "Health",
		Premium:      decimal.RequireFromString("12000.505"),
		TenureMonths: 12,
		Coverage:     "Hospitalisation up to 5 lakh",
		Active:       true,
	}
}

func TestAttributesValidate(t *testing.T) {
	require.NoError(t, validAttributes().Validate())

	cases := map[string]func(a *Attributes){
		"missing name":     func(a *Attributes) { a.Name = "" },
		"long name":        func(a *Attributes) { a.Name = strings.Repeat("n", 101) },
		"missing type":     func(a *Attributes) { a.Type = "" },
		"long type":        func(a *Attributes) { a.Type = strings.Repeat("t", 51) },
		"zero premium":     func(a *Attributes) { a.Premium = decimal.Zero },
		"negative premium": func(a *Attributes) { a.Premium = decimal.NewFromInt(-1) },
		"zero tenure":      func(a *Attributes) { a.TenureMonths = 0 },
		"tenure too long":  func(a *Attributes) { a.TenureMonths = 601 },
		"missing coverage": func(a *Attributes) { a.Coverage = "" },
		"long coverage":    func(a *Attributes) { a.Coverage = strings.Repeat("c", 256) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := validAttributes()
			mutate(&a)
			assert.True(t, dErrors.HasCode(a.Validate(), dErrors.CodeValidation))
		})
	}
}

func TestPolicyApply(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p := New(id.NewPolicyID(), validAttributes(), created)
	assert.Equal(t, "12000.51", p.Premium.StringFixed(2))
	assert.Equal(t, created, p.UpdatedAt)

	later := created.Add(time.Hour)
	attrs := validAttributes()
	attrs.Active = false
	p.Apply(attrs, later)
	assert.False(t, p.Active)
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, later, p.UpdatedAt)
}

func TestFilterMatches(t *testing.T) {
	p := New(id.NewPolicyID(), validAttributes(), time.Now())
	yes, no := true, false

	assert.True(t, Filter{}.Matches(p))
	assert.True(t, Filter{Type: "HEALTH"}.Matches(p))
	assert.False(t, Filter{Type: "life"}.Matches(p))
	assert.True(t, Filter{Active: &yes}.Matches(p))
	assert.False(t, Filter{Type: "health", Active: &no}.Matches(p))
}
