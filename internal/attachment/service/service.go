// Package service manages claim documents and customer notifications.
package service

import (
	"context"
	"log/slog"
	"time"

	"coverline/internal/attachment/models"
	claimmodels "coverline/internal/claim/models"
	"coverline/internal/platform/metrics"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/requestcontext"
)

type DocumentStore interface {
	Save(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	Delete(ctx context.Context, documentID id.DocumentID) error
	ListAll(ctx context.Context) ([]*models.Document, error)
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]*models.Document, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Document, error)
}

type NotificationStore interface {
	Save(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, notificationID id.NotificationID) (*models.Notification, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error)
}

// FileStorage holds document content by key.
type FileStorage interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, time.Duration, error)
}

// Deliverer pushes a stored notification to the customer.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}

// Claims resolves claims. GetByID returns a not-found domain error for
// unknown claims.
type Claims interface {
	GetByID(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// base carries the ambient collaborators shared by both services.
type base struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
}

type Option func(*base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(b *base) { b.auditor = p }
}

func newBase(opts []Option) base {
	b := base{logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) emit(ctx context.Context, event audit.Event) {
	if b.auditor == nil {
		return
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != event.UserID {
		event.ActorID = actor.String()
	}
	if err := b.auditor.Emit(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func requireUser(ctx context.Context, users UserDirectory, userID id.UserID) error {
	ok, err := users.Exists(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check user")
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.UserNotFound, userID))
	}
	return nil
}
