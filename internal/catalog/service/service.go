// Package service manages the policy catalog: admin CRUD and the filtered
// listing customers browse.
package service

import (
	"context"
	"errors"
	"log/slog"

	"coverline/internal/catalog/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, policy *models.Policy) error
	FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Policy, error)
	Delete(ctx context.Context, policyID id.PolicyID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	logger  *slog.Logger
	auditor AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, attrs models.Attributes) (*models.Policy, error) {
	attrs.Normalize()
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	policy := models.New(id.NewPolicyID(), attrs, requestcontext.Now(ctx))
	if err := s.store.Save(ctx, policy); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save catalog policy")
	}
	s.emit(ctx, policy, audit.EventCatalogPolicyCreated)
	return policy, nil
}

// Update overwrites every editable field, including the active flag.
func (s *Service) Update(ctx context.Context, policyID id.PolicyID, attrs models.Attributes) (*models.Policy, error) {
	attrs.Normalize()
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	policy, err := s.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}
	policy.Apply(attrs, requestcontext.Now(ctx))
	if err := s.store.Save(ctx, policy); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save catalog policy")
	}
	s.emit(ctx, policy, audit.EventCatalogPolicyUpdated)
	return policy, nil
}

func (s *Service) Get(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	policy, err := s.store.FindByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(policyID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load catalog policy")
	}
	return policy, nil
}

// List returns the catalog narrowed by filter.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Policy, error) {
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list catalog policies")
	}
	return list, nil
}

func (s *Service) Delete(ctx context.Context, policyID id.PolicyID) error {
	if err := s.store.Delete(ctx, policyID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notFound(policyID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete catalog policy")
	}
	s.emit(ctx, &models.Policy{ID: policyID}, audit.EventCatalogPolicyDeleted)
	return nil
}

func (s *Service) emit(ctx context.Context, policy *models.Policy, action audit.AuditEvent) {
	if s.auditor == nil {
		return
	}
	actor := requestcontext.UserID(ctx)
	event := audit.Event{
		UserID:  actor,
		Subject: policy.ID.String(),
		Action:  string(action),
		Reason:  policy.Type,
	}
	if !actor.IsNil() {
		event.ActorID = actor.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func notFound(policyID id.PolicyID) error {
	return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.CatalogPolicyNotFound, policyID))
}
