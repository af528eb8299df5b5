// Package models defines the policy catalog: the insurance products an admin
// publishes and customers browse before buying an instrument.
package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

const (
	maxNameLength     = 100
	maxTypeLength     = 50
	maxCoverageLength = 255
	minTenureMonths   = 1
	maxTenureMonths   = 600
)

// Policy is a catalog entry. It carries a list price only; instruments are
// priced by the premium engine.
type Policy struct {
	ID           id.PolicyID     `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Premium      decimal.Decimal `json:"premium"`
	TenureMonths int             `json:"tenure_months"`
	Coverage     string          `json:"coverage"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Attributes are the admin-editable fields of a Policy.
type Attributes struct {
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Premium      decimal.Decimal `json:"premium"`
	TenureMonths int             `json:"tenure_months"`
	Coverage     string          `json:"coverage"`
	Active       bool            `json:"active"`
}

func (a *Attributes) Normalize() {
	a.Name = strings.TrimSpace(a.Name)
	a.Type = strings.TrimSpace(a.Type)
	a.Coverage = strings.TrimSpace(a.Coverage)
}

func (a Attributes) Validate() error {
	switch {
	case a.Name == "":
		return dErrors.New(dErrors.CodeValidation, "name is required")
	case utf8.RuneCountInString(a.Name) > maxNameLength:
		return dErrors.New(dErrors.CodeValidation, "name must be at most 100 characters")
	case a.Type == "":
		return dErrors.New(dErrors.CodeValidation, "type is required")
	case utf8.RuneCountInString(a.Type) > maxTypeLength:
		return dErrors.New(dErrors.CodeValidation, "type must be at most 50 characters")
	case !a.Premium.IsPositive():
		return dErrors.New(dErrors.CodeValidation, "premium must be positive")
	case a.TenureMonths < minTenureMonths || a.TenureMonths > maxTenureMonths:
		return dErrors.New(dErrors.CodeValidation, "tenure_months must be between 1 and 600")
	case a.Coverage == "":
		return dErrors.New(dErrors.CodeValidation, "coverage is required")
	case utf8.RuneCountInString(a.Coverage) > maxCoverageLength:
		return dErrors.New(dErrors.CodeValidation, "coverage must be at most 255 characters")
	}
	return nil
}

func New(policyID id.PolicyID, attrs Attributes, now time.Time) *Policy {
	p := &Policy{ID: policyID, CreatedAt: now}
	p.Apply(attrs, now)
	return p
}

// Apply overwrites every editable field.
func (p *Policy) Apply(attrs Attributes, now time.Time) {
	p.Name = attrs.Name
	p.Type = attrs.Type
	p.Premium = attrs.Premium.Round(2)
	p.TenureMonths = attrs.TenureMonths
	p.Coverage = attrs.Coverage
	p.Active = attrs.Active
	p.UpdatedAt = now
}

// Filter narrows a catalog listing. Type matches case-insensitively; a nil
// Active matches both states.
type Filter struct {
	Type   string
	Active *bool
}

func (f Filter) Matches(p *Policy) bool {
	if f.Type != "" && !strings.EqualFold(f.Type, p.Type) {
		return false
	}
	if f.Active != nil && *f.Active != p.Active {
		return false
	}
	return true
}
