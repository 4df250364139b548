// Package auth protects the switchboard admin API with HS256 JWT bearer tokens.
//
// Tokens carry the operator name in "sub" and a role claim:
//
//   - "admin": may change tenants, clear sessions and retarget agents
//   - "viewer": read-only access to sessions, tenants, events and health
//
// Tokens are minted locally with the shared secret:
//
//	v, err := auth.NewJWTVerifier(secret)
//	token, err := v.Generate("ops", auth.RoleAdmin, 24*time.Hour)
//
// HTTPAuthMiddleware verifies the token and attaches an AuthContext to the
// request; RequireAdminHTTP gates mutating routes behind the admin role.
package auth
