package authority

import "context"

type authorizationKey struct{}

// ContextWithAuthorization stores the request's authorization in ctx.
func ContextWithAuthorization(ctx context.Context, auth Authorization) context.Context {
	return context.WithValue(ctx, authorizationKey{}, auth)
}

// AuthorizationFromContext returns the request's authorization. Requests
// that never passed the authorization middleware hold no rights.
func AuthorizationFromContext(ctx context.Context) Authorization {
	auth, _ := ctx.Value(authorizationKey{}).(Authorization)
	return auth
}
