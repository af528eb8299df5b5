// Package messages renders user-facing error and notification text from a
// message catalog. Rendering never influences control flow.
package messages

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Catalog keys.
const (
	UserNotFound           = "user.notfound"
	InstrumentNotFound     = "instrument.notfound"
	InstrumentKindMismatch = "instrument.kind.mismatch"
	PurchaseNotFound       = "purchase.notfound"
	PurchaseRefImmutable   = "purchase.instrument.immutable"
	PurchaseExpiryBefore   = "purchase.expiry.before"
	ClaimNotFound          = "claim.notfound"
	ClaimAlreadyExists     = "claim.already.exists"
	ClaimOwnerMismatch     = "claim.purchase.user.mismatch"
	ClaimPolicyNotActive   = "claim.policy.notactive"
	ClaimStatusFinal       = "claim.status.final"
	ClaimStatusInvalid     = "claim.status.invalid"
	ClaimDeleteNotPending  = "claim.delete.notpending"
	ClaimDecisionNotice    = "claim.decision.notice"
	LifeAgeInvalid         = "life.age.invalid"
	VehicleKindInvalid     = "vehicle.kind.invalid"
	DocumentNotFound       = "document.notfound"
	NotificationNotFound   = "notification.notfound"
	EmailAlreadyRegistered = "user.email.taken"
	InvalidCredentials     = "user.credentials.invalid"
	UserRoleMismatch       = "user.role.mismatch"
	UserSelfDeactivate     = "user.deactivate.self"
	CatalogPolicyNotFound  = "catalog.policy.notfound"
)

var english = map[string]string{
	UserNotFound:           "User not found with id: %v",
	InstrumentNotFound:     "%v policy not found with id: %v",
	InstrumentKindMismatch: "Attributes for %v cannot update a %v policy",
	PurchaseNotFound:       "Purchase not found with id: %v",
	PurchaseRefImmutable:   "Purchase %v is already bound to a different policy",
	PurchaseExpiryBefore:   "Expiry date %v is before purchase date %v",
	ClaimNotFound:          "Claim not found with id: %v",
	ClaimAlreadyExists:     "A claim has already been raised for purchase %v",
	ClaimOwnerMismatch:     "Purchase %v does not belong to user %v",
	ClaimPolicyNotActive:   "Purchase %v is not active (status: %v)",
	ClaimStatusFinal:       "Claim %v is already %v and cannot be changed",
	ClaimStatusInvalid:     "Invalid claim status: %v",
	ClaimDeleteNotPending:  "Only pending claims can be withdrawn; claim %v is %v",
	ClaimDecisionNotice:    "Your claim %v has been %v",
	LifeAgeInvalid:         "Age must be between 18 and 70, got %v",
	VehicleKindInvalid:     "Unsupported vehicle kind: %v",
	DocumentNotFound:       "Document not found with id: %v",
	NotificationNotFound:   "Notification not found with id: %v",
	EmailAlreadyRegistered: "Email %v is already registered",
	InvalidCredentials:     "Invalid email or password",
	UserRoleMismatch:       "User %v is not a %v",
	UserSelfDeactivate:     "Admins cannot deactivate their own account",
	CatalogPolicyNotFound:  "Policy not found with id: %v",
}

var printer = newPrinter()

func newPrinter() *message.Printer {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range english {
		// SetString only fails on malformed tags; the tag is a constant.
		_ = b.SetString(language.English, key, msg)
	}
	return message.NewPrinter(language.English, message.Catalog(b))
}

// Render formats the catalog entry for key with args. Unknown keys are used
// as the format string itself.
func Render(key string, args ...any) string {
	return printer.Sprintf(key, args...)
}
