package shared

import "context"

// RoleAdmin grants access to maintenance endpoints.
const RoleAdmin = "admin"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID    int64
	CompanyID int64
	Role      string
	Name      string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// CompanyID returns the tenant of the current request, or 0 when anonymous.
func CompanyID(ctx context.Context) int64 {
	p, _ := PrincipalFromContext(ctx)
	return p.CompanyID
}
