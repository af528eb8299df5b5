package service

import (
	"context"
	"errors"
	"strings"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type NotificationService struct {
	base
	store     NotificationStore
	deliverer Deliverer
	users     UserDirectory
	claims    Claims
}

func NewNotificationService(store NotificationStore, deliverer Deliverer, users UserDirectory, claims Claims, opts ...Option) *NotificationService {
	return &NotificationService{
		base:      newBase(opts),
		store:     store,
		deliverer: deliverer,
		users:     users,
		claims:    claims,
	}
}

// Send persists an unread notification, then hands it to the deliverer.
// Delivery failures are logged; the notification stays readable in-app.
func (s *NotificationService) Send(ctx context.Context, userID id.UserID, claimID *id.ClaimID, message string) (*models.Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message is required")
	}
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	if claimID != nil {
		if _, err := s.claims.GetByID(ctx, *claimID); err != nil {
			return nil, err
		}
	}

	n := &models.Notification{
		ID:        id.NewNotificationID(),
		UserID:    userID,
		ClaimID:   claimID,
		Message:   message,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save notification")
	}

	if err := s.deliverer.Deliver(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "failed to deliver notification",
			"notification_id", n.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	s.metrics.IncNotificationSent()
	s.emit(ctx, audit.Event{
		UserID:  userID,
		Subject: n.ID.String(),
		Action:  string(audit.EventNotificationSent),
	})
	return n, nil
}

func (s *NotificationService) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error) {
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return list, nil
}

// MarkRead marks one of userID's notifications read. Other users'
// notifications are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	n, err := s.store.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notificationNotFound(notificationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notification")
	}
	if n.UserID != userID {
		return nil, notificationNotFound(notificationID)
	}
	if !n.MarkRead() {
		return n, nil
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save notification")
	}
	return n, nil
}

func notificationNotFound(notificationID id.NotificationID) error {
	return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.NotificationNotFound, notificationID))
}
