package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"coverline/internal/catalog/models"
	"coverline/internal/catalog/store"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/audit/publisher"
	auditmemory "coverline/pkg/platform/audit/store/memory"
	"coverline/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	adminID id.UserID
	audit   *auditmemory.InMemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.adminID = id.NewUserID()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s.ctx = requestcontext.WithUserID(s.ctx, s.adminID)
	s.audit = auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(s.audit)
	s.T().Cleanup(pub.Close)
	s.service = New(store.NewInMemoryStore(), WithAuditPublisher(pub))
}

func attrs(name, kind string, active bool) models.Attributes {
	return models.Attributes{
		Name:         name,
		Type:         kind,
		Premium:      decimal.NewFromInt(4500),
		TenureMonths: 12,
		Coverage:     "Standard cover",
		Active:       active,
	}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("normalizes and stores", func() {
		policy, err := s.service.Create(s.ctx, attrs("  Term Plus  ", " Life ", true))
		s.Require().NoError(err)
		s.Equal("Term Plus", policy.Name)
		s.Equal("Life", policy.Type)

		found, err := s.service.Get(s.ctx, policy.ID)
		s.Require().NoError(err)
		s.Equal(policy.ID, found.ID)
		s.Equal([]string{"catalog_policy_created"}, s.audit.Actions(s.adminID))
	})

	s.Run("rejects invalid attributes", func() {
		bad := attrs("Term Plus", "Life", true)
		bad.TenureMonths = 0
		_, err := s.service.Create(s.ctx, bad)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdate() {
	policy, err := s.service.Create(s.ctx, attrs("Term Plus", "Life", true))
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	updated, err := s.service.Update(later, policy.ID, attrs("Term Plus", "Life", false))
	s.Require().NoError(err)
	s.False(updated.Active)
	s.Equal(policy.CreatedAt, updated.CreatedAt)
	s.True(updated.UpdatedAt.After(policy.UpdatedAt))

	_, err = s.service.Update(s.ctx, id.NewPolicyID(), attrs("Ghost", "Life", true))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListFilters() {
	_, err := s.service.Create(s.ctx, attrs("Term Plus", "Life", true))
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, attrs("Old Term", "life", false))
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, attrs("Floater", "Health", true))
	s.Require().NoError(err)
	active := true

	names := func(f models.Filter) []string {
		list, err := s.service.List(s.ctx, f)
		s.Require().NoError(err)
		out := make([]string, 0, len(list))
		for _, p := range list {
			out = append(out, p.Name)
		}
		return out
	}

	s.ElementsMatch([]string{"Term Plus", "Old Term", "Floater"}, names(models.Filter{}))
	s.ElementsMatch([]string{"Term Plus", "Old Term"}, names(models.Filter{Type: "LIFE"}))
	s.ElementsMatch([]string{"Term Plus", "Floater"}, names(models.Filter{Active: &active}))
	s.ElementsMatch([]string{"Term Plus"}, names(models.Filter{Type: "life", Active: &active}))
}

func (s *ServiceSuite) TestDelete() {
	policy, err := s.service.Create(s.ctx, attrs("Term Plus", "Life", true))
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, policy.ID))
	_, err = s.service.Get(s.ctx, policy.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Delete(s.ctx, policy.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Contains(err.Error(), policy.ID.String())
}
