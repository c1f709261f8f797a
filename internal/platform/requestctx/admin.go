// Package requestctx carries request-scoped identity through context.
package requestctx

import "context"

// AdminIdentity is the verified identity behind a governance request.
type AdminIdentity struct {
	AdminID string
	Role    string
}

// adminContextKey is the context key for authenticated admin identity.
type adminContextKey struct{}

// WithAdmin stores an admin identity in context.
func WithAdmin(ctx context.Context, identity AdminIdentity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, adminContextKey{}, identity)
}

// AdminFromContext returns the admin identity stored in context.
func AdminFromContext(ctx context.Context) (AdminIdentity, bool) {
	if ctx == nil {
		return AdminIdentity{}, false
	}
	identity, ok := ctx.Value(adminContextKey{}).(AdminIdentity)
	return identity, ok
}
