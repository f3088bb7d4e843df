// Package httpapi exposes the authentication engine and the security
// monitor as a JSON API on a chi router.
//
// Every response uses the same envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": {"code": "...", "message": "..."}}
//
// Authenticated routes expect "Authorization: Bearer <session token>".
// Routes under /admin additionally require the admin role.
package httpapi
