// Package coverage owns the cascades between instruments and purchases:
// confirming an instrument into a purchase and cancelling either side.
// Each cascade is one level deep and runs in a single transaction.
package coverage

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	instrumentmodels "coverline/internal/instrument/models"
	instrumentservice "coverline/internal/instrument/service"
	"coverline/internal/platform/metrics"
	purchasemodels "coverline/internal/purchase/models"
	purchaseservice "coverline/internal/purchase/service"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/audit"
	"coverline/pkg/requestcontext"
)

type Instruments interface {
	Get(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*instrumentmodels.Instrument, error)
	Bind(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID, purchaseID id.PurchaseID) (*instrumentmodels.Instrument, error)
	Cancel(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*instrumentservice.CancelResult, error)
}

type Purchases interface {
	Create(ctx context.Context, userID id.UserID, ref purchasemodels.InstrumentRef, purchaseDate, expiryDate time.Time) (*purchasemodels.Purchase, error)
	Cancel(ctx context.Context, purchaseID id.PurchaseID) (*purchaseservice.CancelResult, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ConfirmResult pairs the new purchase with the instrument it bound.
type ConfirmResult struct {
	Purchase   *purchasemodels.Purchase     `json:"purchase"`
	Instrument *instrumentmodels.Instrument `json:"instrument"`
}

// InstrumentCancelResult reports the cancelled instrument and, when it was
// bound, the purchase cancelled with it.
type InstrumentCancelResult struct {
	Instrument *instrumentmodels.Instrument `json:"instrument,omitempty"`
	Deleted    bool                         `json:"deleted"`
	Purchase   *purchasemodels.Purchase     `json:"purchase,omitempty"`
}

// PurchaseCancelResult reports the cancelled purchase and its instrument.
type PurchaseCancelResult struct {
	Purchase   *purchasemodels.Purchase     `json:"purchase"`
	Instrument *instrumentmodels.Instrument `json:"instrument,omitempty"`
}

type Service struct {
	instruments Instruments
	purchases   Purchases
	tx          StoreTx
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     AuditPublisher
	tracer      trace.Tracer
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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(instruments Instruments, purchases Purchases, tx StoreTx, opts ...Option) *Service {
	s := &Service{
		instruments: instruments,
		purchases:   purchases,
		tx:          tx,
		logger:      slog.Default(),
		tracer:      otel.Tracer("coverline/internal/coverage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confirm creates an ACTIVE purchase of the user's instrument and binds the
// instrument to it, both or neither. A confirmed instrument is rebound to
// the new purchase; a cancelled one cannot be confirmed.
func (s *Service) Confirm(ctx context.Context, userID id.UserID, kind id.InstrumentKind, instrumentID id.InstrumentID, purchaseDate, expiryDate time.Time) (*ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "coverage.Confirm", trace.WithAttributes(
		attribute.String("instrument.kind", string(kind)),
		attribute.String("instrument.id", instrumentID.String()),
	))
	defer span.End()

	ref, err := purchasemodels.NewInstrumentRef(kind, instrumentID)
	if err != nil {
		return nil, fail(span, err)
	}

	var result ConfirmResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		inst, err := s.instruments.Get(ctx, kind, instrumentID)
		if err != nil {
			return err
		}
		if inst.UserID != userID {
			return dErrors.New(dErrors.CodeOwnershipMismatch, "policy does not belong to user")
		}
		if inst.Status == instrumentmodels.StatusCancelled {
			return dErrors.New(dErrors.CodeInvariantViolation, "cancelled policy cannot be confirmed")
		}
		p, err := s.purchases.Create(ctx, userID, ref, purchaseDate, expiryDate)
		if err != nil {
			return err
		}
		bound, err := s.instruments.Bind(ctx, kind, instrumentID, p.ID)
		if err != nil {
			return err
		}
		result = ConfirmResult{Purchase: p, Instrument: bound}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("purchase.id", result.Purchase.ID.String()))
	s.metrics.IncPurchaseConfirmed(string(kind))
	s.emit(ctx, audit.Event{
		UserID:   userID,
		Subject:  result.Purchase.ID.String(),
		Action:   string(audit.EventPurchaseConfirmed),
		Decision: string(result.Instrument.Status),
		Reason:   string(kind) + ":" + instrumentID.String(),
	})
	return &result, nil
}

// CancelInstrument cancels the instrument and the purchase it is bound to.
// The purchase cancellation does not cascade back.
func (s *Service) CancelInstrument(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*InstrumentCancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "coverage.CancelInstrument", trace.WithAttributes(
		attribute.String("instrument.kind", string(kind)),
		attribute.String("instrument.id", instrumentID.String()),
	))
	defer span.End()

	var result InstrumentCancelResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cancelled, err := s.instruments.Cancel(ctx, kind, instrumentID)
		if err != nil {
			return err
		}
		result.Deleted = cancelled.Deleted
		if !cancelled.Deleted {
			result.Instrument = cancelled.Instrument
		}
		if cancelled.PurchaseID == nil {
			return nil
		}
		pc, err := s.purchases.Cancel(ctx, *cancelled.PurchaseID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				s.logger.WarnContext(ctx, "bound purchase missing during cancel",
					"purchase_id", cancelled.PurchaseID.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				return nil
			}
			return err
		}
		result.Purchase = pc.Purchase
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	event := audit.Event{
		Subject: instrumentID.String(),
		Action:  string(audit.EventInstrumentCancelled),
		Reason:  string(kind),
	}
	if result.Instrument != nil {
		event.UserID = result.Instrument.UserID
		event.Decision = string(result.Instrument.Status)
	}
	if result.Purchase != nil {
		event.UserID = result.Purchase.UserID
		event.Reason = string(kind) + ":" + result.Purchase.ID.String()
	}
	s.emit(ctx, event)
	return &result, nil
}

// CancelPurchase cancels the purchase and the instrument it covers. The
// instrument cancellation does not cascade back.
func (s *Service) CancelPurchase(ctx context.Context, purchaseID id.PurchaseID) (*PurchaseCancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "coverage.CancelPurchase", trace.WithAttributes(
		attribute.String("purchase.id", purchaseID.String()),
	))
	defer span.End()

	var result PurchaseCancelResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		pc, err := s.purchases.Cancel(ctx, purchaseID)
		if err != nil {
			return err
		}
		result.Purchase = pc.Purchase
		ref := pc.Purchase.Instrument
		ic, err := s.instruments.Cancel(ctx, ref.Kind, ref.ID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				s.logger.WarnContext(ctx, "bound policy missing during cancel",
					"instrument_id", ref.ID.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				return nil
			}
			return err
		}
		if !ic.Deleted {
			result.Instrument = ic.Instrument
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.emit(ctx, audit.Event{
		UserID:   result.Purchase.UserID,
		Subject:  purchaseID.String(),
		Action:   string(audit.EventPurchaseCancelled),
		Decision: string(result.Purchase.Status),
		Reason:   string(result.Purchase.Instrument.Kind) + ":" + result.Purchase.Instrument.ID.String(),
	})
	return &result, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != event.UserID {
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

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
