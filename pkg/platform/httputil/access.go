package httputil

import (
	"context"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/middleware/admin"
	"coverline/pkg/requestcontext"
)

// IsAdmin reports whether the authenticated caller holds the ADMIN role.
func IsAdmin(ctx context.Context) bool {
	return requestcontext.Role(ctx) == admin.RoleAdmin
}

// RequireOwner allows admins and the owner of a resource. Everyone else
// gets CodeForbidden.
func RequireOwner(ctx context.Context, owner id.UserID) error {
	if IsAdmin(ctx) || requestcontext.UserID(ctx) == owner {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "resource belongs to another user")
}
