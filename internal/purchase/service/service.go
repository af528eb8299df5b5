// Package service implements the purchase ledger. It never cascades into
// instruments; cross-aggregate effects belong to the coverage coordinator.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	instrumentmodels "coverline/internal/instrument/models"
	"coverline/internal/platform/metrics"
	"coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, purchaseID id.PurchaseID) (*models.Purchase, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Purchase, error)
	ListByUserAndStatus(ctx context.Context, userID id.UserID, status models.Status) ([]*models.Purchase, error)
	ListActiveByUser(ctx context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error)
	ListExpiredByUser(ctx context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}

// Instruments resolves instrument references.
type Instruments interface {
	Get(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*instrumentmodels.Instrument, error)
}

// ClaimIndex reports which purchases have ever been claimed.
type ClaimIndex interface {
	ClaimedPurchases(ctx context.Context, purchaseIDs []id.PurchaseID) (map[id.PurchaseID]bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CancelResult reports the cancelled purchase and whether it changed.
type CancelResult struct {
	Purchase *models.Purchase
	Changed  bool
}

type Service struct {
	store       Store
	users       UserDirectory
	instruments Instruments
	claims      ClaimIndex
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     AuditPublisher
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

// WithClaimIndex lets ListActiveForClaims drop purchases that were already
// claimed.
func WithClaimIndex(c ClaimIndex) Option {
	return func(s *Service) { s.claims = c }
}

func New(store Store, users UserDirectory, instruments Instruments, opts ...Option) *Service {
	s := &Service{
		store:       store,
		users:       users,
		instruments: instruments,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records an ACTIVE purchase of ref for userID. It does not bind the
// instrument. A zero purchase date defaults to today and a zero expiry date
// to one year after the purchase date.
func (s *Service) Create(ctx context.Context, userID id.UserID, ref models.InstrumentRef, purchaseDate, expiryDate time.Time) (*models.Purchase, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.requireInstrument(ctx, ref); err != nil {
		return nil, err
	}
	if purchaseDate.IsZero() {
		purchaseDate = requestcontext.Today(ctx)
	}
	if expiryDate.IsZero() {
		expiryDate = purchaseDate.AddDate(1, 0, 0)
	}
	if err := checkDates(purchaseDate, expiryDate); err != nil {
		return nil, err
	}

	p := models.New(id.NewPurchaseID(), userID, ref, purchaseDate, expiryDate)
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save purchase")
	}
	s.emit(ctx, p, audit.EventPurchaseCreated)
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, purchaseID id.PurchaseID) (*models.Purchase, error) {
	p, err := s.store.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, messages.Render(messages.PurchaseNotFound, purchaseID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load purchase")
	}
	return p, nil
}

// Update changes the dates of a purchase. A supplied ref is re-resolved and
// must name the instrument already referenced; zero dates keep their value.
func (s *Service) Update(ctx context.Context, purchaseID id.PurchaseID, ref *models.InstrumentRef, purchaseDate, expiryDate time.Time) (*models.Purchase, error) {
	p, err := s.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		if err := s.requireInstrument(ctx, *ref); err != nil {
			return nil, err
		}
		if *ref != p.Instrument {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, messages.Render(messages.PurchaseRefImmutable, purchaseID))
		}
	}
	if !purchaseDate.IsZero() {
		p.PurchaseDate = models.Day(purchaseDate)
	}
	if !expiryDate.IsZero() {
		p.ExpiryDate = models.Day(expiryDate)
	}
	if err := checkDates(p.PurchaseDate, p.ExpiryDate); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save purchase")
	}
	s.emit(ctx, p, audit.EventPurchaseUpdated)
	return p, nil
}

// Cancel marks the purchase CANCELLED. An already cancelled purchase is a
// no-op success.
func (s *Service) Cancel(ctx context.Context, purchaseID id.PurchaseID) (*CancelResult, error) {
	p, err := s.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !p.Cancel() {
		return &CancelResult{Purchase: p}, nil
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel purchase")
	}
	s.metrics.IncPurchaseCancelled()
	s.emit(ctx, p, audit.EventPurchaseCancelled)
	return &CancelResult{Purchase: p, Changed: true}, nil
}

// ListForUser filters by activity: true returns ACTIVE purchases that have
// not expired, false returns cancelled or expired ones, nil returns all.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID, activeOnly *bool) ([]*models.Purchase, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	today := requestcontext.Today(ctx)

	var (
		list []*models.Purchase
		err  error
	)
	switch {
	case activeOnly == nil:
		list, err = s.store.ListByUser(ctx, userID)
	case *activeOnly:
		list, err = s.store.ListActiveByUser(ctx, userID, today)
	default:
		list, err = s.listInactive(ctx, userID, today)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list purchases")
	}
	return list, nil
}

// listInactive unions cancelled and expired purchases. The two queries are
// independent and run concurrently.
func (s *Service) listInactive(ctx context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error) {
	var cancelled, expired []*models.Purchase
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cancelled, err = s.store.ListByUserAndStatus(gctx, userID, models.StatusCancelled)
		return err
	})
	g.Go(func() error {
		var err error
		expired, err = s.store.ListExpiredByUser(gctx, userID, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.UniqBy(append(cancelled, expired...), func(p *models.Purchase) id.PurchaseID {
		return p.ID
	}), nil
}

// ListActiveForClaims returns ACTIVE purchases a claim could still be raised
// against.
func (s *Service) ListActiveForClaims(ctx context.Context, userID id.UserID) ([]*models.Purchase, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	active, err := s.store.ListByUserAndStatus(ctx, userID, models.StatusActive)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list purchases")
	}
	if s.claims == nil || len(active) == 0 {
		return active, nil
	}

	claimed, err := s.claims.ClaimedPurchases(ctx, lo.Map(active, func(p *models.Purchase, _ int) id.PurchaseID {
		return p.ID
	}))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check claims")
	}
	return lo.Reject(active, func(p *models.Purchase, _ int) bool {
		return claimed[p.ID]
	}), nil
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

// requireInstrument surfaces the instrument service's not-found error as is.
func (s *Service) requireInstrument(ctx context.Context, ref models.InstrumentRef) error {
	_, err := s.instruments.Get(ctx, ref.Kind, ref.ID)
	return err
}

func checkDates(purchaseDate, expiryDate time.Time) error {
	if models.Day(expiryDate).Before(models.Day(purchaseDate)) {
		return dErrors.New(dErrors.CodeValidation, messages.Render(messages.PurchaseExpiryBefore,
			expiryDate.Format(models.DateLayout), purchaseDate.Format(models.DateLayout)))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, p *models.Purchase, action audit.AuditEvent) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:   p.UserID,
		Subject:  p.ID.String(),
		Action:   string(action),
		Decision: string(p.Status),
		Reason:   string(p.Instrument.Kind) + ":" + p.Instrument.ID.String(),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
