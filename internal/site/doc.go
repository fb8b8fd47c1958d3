// Package site serves the private area over HTTP.
//
// # Routes
//
// Outside any gate:
//
//	GET  /health
//	GET  /private/auth              sign-in entry page
//	GET  /private/auth/verify       magic link landing, renders a confirm form
//	POST /private/auth/verify       consumes the link and issues the session
//	POST /private/logout
//	POST /api/private/auth/request  self-service link request, always {"ok":true}
//
// The verify and request routes are rate limited per client IP. Forwarded
// client headers count only from Config.TrustedProxies.
//
// Session gated pages redirect to the auth page, or to /private when the
// role is missing:
//
//	GET  /private
//	GET  /private/admin             admin role
//
// Session gated JSON answers 401 no_session|invalid_session and 403
// not_admin:
//
//	GET  /api/private/me
//	POST /api/private/access-request
//	GET  /api/private/admin/requests
//	POST /api/private/admin/requests/{id}/status
//	POST /api/private/admin/links
//	GET  /api/private/admin/audit
//
// Admin token gated (bearer, X-Admin-Token or a JSON "token" field) and
// rate limited per client IP:
//
//	POST /api/jobs/create
//	POST /api/jobs/activate
//	POST /api/jobs/reindex
//	GET  /api/jobs/export
package site
