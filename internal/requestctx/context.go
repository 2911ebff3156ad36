// Package requestctx provides request-scoped identity values set by the
// auth middleware (org, user, calling service).
package requestctx

import "context"

type contextKey struct{ name string }

var (
	orgIDKey         = &contextKey{"org_id"}
	userIDKey        = &contextKey{"user_id"}
	sourceServiceKey = &contextKey{"source_service"}
)

// SetIdentity stores the caller identity in the context.
func SetIdentity(ctx context.Context, orgID, userID, sourceService string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, orgID)
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sourceServiceKey, sourceService)
}

// OrgID returns the org id from context, or "" if not set.
func OrgID(ctx context.Context) string {
	v, _ := ctx.Value(orgIDKey).(string)
	return v
}

// UserID returns the user id from context, or "" if not set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SourceService returns the calling service name from context, or "" if not set.
func SourceService(ctx context.Context) string {
	v, _ := ctx.Value(sourceServiceKey).(string)
	return v
}
