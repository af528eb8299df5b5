package audit

import (
	"context"
	"time"

	id "coverline/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: policy
	// binding, cancellations and claim decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an admin deciding a customer's claim.
	ActorID  string
	ClientIP string
	Channel  string
}

type AuditEvent string

const (
	// User events
	EventUserRegistered  AuditEvent = "user_registered"
	EventUserLoggedIn    AuditEvent = "user_logged_in"
	EventAuthFailed      AuditEvent = "auth_failed"
	EventUserActivated   AuditEvent = "user_activated"
	EventUserDeactivated AuditEvent = "user_deactivated"

	// Instrument events
	EventInstrumentCreated   AuditEvent = "instrument_created"
	EventInstrumentUpdated   AuditEvent = "instrument_updated"
	EventInstrumentDeleted   AuditEvent = "instrument_deleted"
	EventInstrumentCancelled AuditEvent = "instrument_cancelled"

	// Catalog events
	EventCatalogPolicyCreated AuditEvent = "catalog_policy_created"
	EventCatalogPolicyUpdated AuditEvent = "catalog_policy_updated"
	EventCatalogPolicyDeleted AuditEvent = "catalog_policy_deleted"

	// Purchase events
	EventPurchaseConfirmed AuditEvent = "purchase_confirmed"
	EventPurchaseCreated   AuditEvent = "purchase_created"
	EventPurchaseUpdated   AuditEvent = "purchase_updated"
	EventPurchaseCancelled AuditEvent = "purchase_cancelled"

	// Claim events
	EventClaimRaised    AuditEvent = "claim_raised"
	EventClaimDecided   AuditEvent = "claim_decided"
	EventClaimWithdrawn AuditEvent = "claim_withdrawn"

	// Attachment events
	EventDocumentUploaded AuditEvent = "document_uploaded"
	EventDocumentVerified AuditEvent = "document_verified"
	EventDocumentReplaced AuditEvent = "document_replaced"
	EventDocumentDeleted  AuditEvent = "document_deleted"
	EventNotificationSent AuditEvent = "notification_sent"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:      CategoryCompliance,
	EventPurchaseConfirmed:   CategoryCompliance,
	EventPurchaseCancelled:   CategoryCompliance,
	EventInstrumentCancelled: CategoryCompliance,
	EventClaimRaised:         CategoryCompliance,
	EventClaimDecided:        CategoryCompliance,
	EventClaimWithdrawn:      CategoryCompliance,
	EventDocumentVerified:    CategoryCompliance,

	EventAuthFailed:      CategorySecurity,
	EventUserLoggedIn:    CategorySecurity,
	EventUserActivated:   CategorySecurity,
	EventUserDeactivated: CategorySecurity,
	EventDocumentDeleted: CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can answer per-user queries.
type Reader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
