// Package service implements the instrument lifecycle shared by every kind:
// create, reprice, bind, cancel and delete.
package service

import (
	"context"
	"errors"
	"log/slog"

	"coverline/internal/instrument/models"
	"coverline/internal/platform/metrics"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, instrument *models.Instrument) error
	FindByID(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*models.Instrument, error)
	ListByKind(ctx context.Context, kind id.InstrumentKind) ([]*models.Instrument, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Instrument, error)
	Delete(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) error
}

// UserDirectory answers whether an owner exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CancelResult describes what Cancel did. PurchaseID is the linked purchase,
// if any, for the caller to cascade to.
type CancelResult struct {
	Instrument *models.Instrument
	Deleted    bool
	Changed    bool
	PurchaseID *id.PurchaseID
}

type Service struct {
	store   Store
	users   UserDirectory
	pricer  models.Pricer
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher

	deletePendingOnCancel bool
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

// WithDeletePendingOnCancel makes Cancel hard-delete instruments that were
// never bound instead of marking them CANCELLED.
func WithDeletePendingOnCancel(enabled bool) Option {
	return func(s *Service) { s.deletePendingOnCancel = enabled }
}

func New(store Store, users UserDirectory, pricer models.Pricer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		users:  users,
		pricer: pricer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create prices attrs and persists a PENDING instrument owned by owner.
func (s *Service) Create(ctx context.Context, owner id.UserID, attrs models.Attributes) (*models.Instrument, error) {
	if err := s.requireUser(ctx, owner); err != nil {
		return nil, err
	}
	details, err := models.Price(ctx, s.pricer, attrs)
	if err != nil {
		return nil, err
	}

	inst := models.New(id.NewInstrumentID(), owner, details, requestcontext.Now(ctx))
	if err := s.store.Save(ctx, inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save policy")
	}

	s.metrics.IncInstrumentCreated(string(inst.Kind))
	s.emit(ctx, inst, audit.EventInstrumentCreated)
	return inst, nil
}

func (s *Service) Get(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*models.Instrument, error) {
	inst, err := s.store.FindByID(ctx, kind, instrumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(kind, instrumentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return inst, nil
}

// List returns every instrument of kind.
func (s *Service) List(ctx context.Context, kind id.InstrumentKind) ([]*models.Instrument, error) {
	list, err := s.store.ListByKind(ctx, kind)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return list, nil
}

func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Instrument, error) {
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return list, nil
}

// Update reprices the instrument from attrs whatever its status.
func (s *Service) Update(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID, attrs models.Attributes) (*models.Instrument, error) {
	inst, err := s.Get(ctx, kind, instrumentID)
	if err != nil {
		return nil, err
	}
	if attrs.InstrumentKind() != inst.Kind {
		return nil, dErrors.New(dErrors.CodeValidation,
			messages.Render(messages.InstrumentKindMismatch, attrs.InstrumentKind(), inst.Kind))
	}
	details, err := models.Price(ctx, s.pricer, attrs)
	if err != nil {
		return nil, err
	}

	inst.Reprice(details, requestcontext.Now(ctx))
	if err := s.store.Save(ctx, inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save policy")
	}
	s.emit(ctx, inst, audit.EventInstrumentUpdated)
	return inst, nil
}

// Delete removes the instrument regardless of status.
func (s *Service) Delete(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) error {
	inst, err := s.Get(ctx, kind, instrumentID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kind, instrumentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notFound(kind, instrumentID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete policy")
	}
	s.emit(ctx, inst, audit.EventInstrumentDeleted)
	return nil
}

// Bind links the instrument to purchaseID and confirms it. Rebinding an
// already confirmed instrument overwrites the link.
func (s *Service) Bind(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID, purchaseID id.PurchaseID) (*models.Instrument, error) {
	inst, err := s.Get(ctx, kind, instrumentID)
	if err != nil {
		return nil, err
	}
	inst.Bind(purchaseID, requestcontext.Now(ctx))
	if err := s.store.Save(ctx, inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind policy")
	}
	return inst, nil
}

// Cancel withdraws the instrument. It does not touch the linked purchase;
// the coverage coordinator cascades using CancelResult.PurchaseID.
// Cancelling an already cancelled instrument succeeds without changes.
func (s *Service) Cancel(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*CancelResult, error) {
	inst, err := s.Get(ctx, kind, instrumentID)
	if err != nil {
		return nil, err
	}
	result := &CancelResult{Instrument: inst, PurchaseID: inst.PurchaseID}

	if s.deletePendingOnCancel && inst.IsUnbound() {
		if err := s.store.Delete(ctx, kind, instrumentID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete policy")
		}
		result.Deleted = true
		result.Changed = true
		s.emit(ctx, inst, audit.EventInstrumentDeleted)
		return result, nil
	}

	if !inst.Cancel(requestcontext.Now(ctx)) {
		return result, nil
	}
	if err := s.store.Save(ctx, inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel policy")
	}
	result.Changed = true
	s.emit(ctx, inst, audit.EventInstrumentCancelled)
	return result, nil
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

func (s *Service) emit(ctx context.Context, inst *models.Instrument, action audit.AuditEvent) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:   inst.UserID,
		Subject:  inst.ID.String(),
		Action:   string(action),
		Decision: string(inst.Status),
		Reason:   string(inst.Kind),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != inst.UserID {
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

func notFound(kind id.InstrumentKind, instrumentID id.InstrumentID) error {
	return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.InstrumentNotFound, kindLabel(kind), instrumentID))
}

func kindLabel(kind id.InstrumentKind) string {
	switch kind {
	case id.KindBike:
		return "Bike"
	case id.KindCar:
		return "Car"
	case id.KindHealth:
		return "Health"
	case id.KindLife:
		return "Life"
	default:
		return string(kind)
	}
}
