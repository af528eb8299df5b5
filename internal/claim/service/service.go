// Package service implements the claim workflow: raising a claim against an
// active purchase, the admin decision and customer withdrawal.
package service

import (
	"context"
	"errors"
	"log/slog"

	attachmentmodels "coverline/internal/attachment/models"
	"coverline/internal/claim/models"
	"coverline/internal/platform/metrics"
	purchasemodels "coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type Store interface {
	CreateIfPurchaseUnclaimed(ctx context.Context, claim *models.Claim) error
	Save(ctx context.Context, claim *models.Claim) error
	FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	Delete(ctx context.Context, claimID id.ClaimID) error
	ListAll(ctx context.Context) ([]*models.Claim, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Claim, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Claim, error)
	ListByPurchase(ctx context.Context, purchaseID id.PurchaseID) ([]*models.Claim, error)
	CountByStatus(ctx context.Context, status models.Status) (int, error)
	CountByUser(ctx context.Context, userID id.UserID) (int, error)
}

// Purchases is the read-only view of the purchase ledger.
type Purchases interface {
	GetByID(ctx context.Context, purchaseID id.PurchaseID) (*purchasemodels.Purchase, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}

// Notifier delivers a message to a customer.
type Notifier interface {
	Send(ctx context.Context, userID id.UserID, claimID *id.ClaimID, message string) (*attachmentmodels.Notification, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store     Store
	purchases Purchases
	users     UserDirectory
	notifier  Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithNotifier tells claim owners about decisions.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(store Store, purchases Purchases, users UserDirectory, opts ...Option) *Service {
	s := &Service{
		store:     store,
		purchases: purchases,
		users:     users,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Raise opens a PENDING claim for userID against purchaseID. The purchase
// must belong to the user and be ACTIVE, and must never have been claimed.
func (s *Service) Raise(ctx context.Context, userID id.UserID, purchaseID id.PurchaseID) (*models.Claim, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, dErrors.New(dErrors.CodeOwnershipMismatch, messages.Render(messages.ClaimOwnerMismatch, purchaseID, userID))
	}
	if p.Status != purchasemodels.StatusActive {
		return nil, dErrors.New(dErrors.CodePolicyNotActive, messages.Render(messages.ClaimPolicyNotActive, purchaseID, p.Status))
	}

	claim := models.New(id.NewClaimID(), userID, purchaseID, requestcontext.Now(ctx))
	if err := s.store.CreateIfPurchaseUnclaimed(ctx, claim); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicateClaim, messages.Render(messages.ClaimAlreadyExists, purchaseID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim")
	}

	s.metrics.IncClaimRaised()
	s.emit(ctx, claim, audit.EventClaimRaised)
	return claim, nil
}

// UpdateStatus records an admin decision. Decided claims are immutable.
func (s *Service) UpdateStatus(ctx context.Context, claimID id.ClaimID, status string) (*models.Claim, error) {
	claim, err := s.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	next, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if err := claim.Transition(next); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, claim); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim")
	}

	if next.IsTerminal() {
		s.metrics.IncClaimDecided(string(next))
		s.emit(ctx, claim, audit.EventClaimDecided)
		s.notifyDecision(ctx, claim)
	}
	return claim, nil
}

// Withdraw deletes a PENDING claim. The purchase stays claimed.
func (s *Service) Withdraw(ctx context.Context, claimID id.ClaimID) error {
	claim, err := s.GetByID(ctx, claimID)
	if err != nil {
		return err
	}
	if err := claim.CanWithdraw(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, claimID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return claimNotFound(claimID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete claim")
	}
	s.emit(ctx, claim, audit.EventClaimWithdrawn)
	return nil
}

func (s *Service) GetByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	claim, err := s.store.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, claimNotFound(claimID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return claim, nil
}

func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Claim, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return wrapList(s.store.ListByUser(ctx, userID))
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]*models.Claim, error) {
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return wrapList(s.store.ListByStatus(ctx, st))
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Claim, error) {
	return wrapList(s.store.ListAll(ctx))
}

func (s *Service) ListByPurchase(ctx context.Context, purchaseID id.PurchaseID) ([]*models.Claim, error) {
	if _, err := s.purchases.GetByID(ctx, purchaseID); err != nil {
		return nil, err
	}
	return wrapList(s.store.ListByPurchase(ctx, purchaseID))
}

func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.store.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count claims")
	}
	return n, nil
}

func (s *Service) CountByUser(ctx context.Context, userID id.UserID) (int, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.store.CountByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count claims")
	}
	return n, nil
}

func (s *Service) HasClaims(ctx context.Context, userID id.UserID) (bool, error) {
	n, err := s.CountByUser(ctx, userID)
	return n > 0, err
}

// notifyDecision is best effort: a failed notification never undoes the
// decision.
func (s *Service) notifyDecision(ctx context.Context, claim *models.Claim) {
	if s.notifier == nil {
		return
	}
	claimID := claim.ID
	msg := messages.Render(messages.ClaimDecisionNotice, claim.ID, claim.Status)
	if _, err := s.notifier.Send(ctx, claim.UserID, &claimID, msg); err != nil {
		s.logger.WarnContext(ctx, "failed to notify claim decision",
			"claim_id", claim.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) requireUser(ctx context.Context, userID id.UserID) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check user")
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.UserNotFound, userID))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, claim *models.Claim, action audit.AuditEvent) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:   claim.UserID,
		Subject:  claim.ID.String(),
		Action:   string(action),
		Decision: string(claim.Status),
		Reason:   claim.PurchaseID.String(),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != claim.UserID {
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

func claimNotFound(claimID id.ClaimID) error {
	return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.ClaimNotFound, claimID))
}

func wrapList(list []*models.Claim, err error) ([]*models.Claim, error) {
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	return list, nil
}
