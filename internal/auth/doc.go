// Package auth provides authentication and authorization for the private area.
//
// # Sessions
//
// A visitor is authenticated by an opaque session hash carried in the
// ep_private cookie. The Validator looks the hash up once per request:
//
//	res := validator.Validate(ctx, hash)
//
// A session is valid only while revoked_at is unset and now is before
// expires_at. Lookup failures and timeouts fail closed: the result is
// unauthenticated with reason "store_unavailable". A successful validation
// triggers a best-effort last_seen_at write whose outcome never reaches the
// caller. Background writes are tracked and drained by Validator.Close.
//
// # Gates
//
// Gate turns validation results into HTTP behaviour:
//
//   - Middleware: pages; unauthenticated visitors are redirected to the
//     auth entry point with a sanitized next parameter
//   - RequireRole: pages; a valid session without the role is redirected to
//     the private home page
//   - APIMiddleware, RequireRoleAPI: JSON endpoints answering 401 or 403
//
// Decide holds the decision logic so it can be tested without HTTP. The
// auth entry routes must be registered outside any gated router group.
//
// # Admin Token
//
// AdminTokenGate authorizes machine-to-machine calls by comparing a token
// from, in order, the Authorization bearer header, the X-Admin-Token header
// or a JSON body "token" field with the configured secret. Inspecting the
// body does not consume it. Without a configured secret every request is
// rejected with 500 so a deployment defect is distinguishable from a bad
// caller.
//
// # Magic Links
//
// LinkSigner issues HS256 tokens whose sub is the email and whose jti is
// recorded by the store so each link can be used once.
package auth
