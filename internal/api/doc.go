// Package api is the gateway's HTTP surface.
//
// All routes live under /api/v1 and delegate to the command router:
// plugin listing and health, scan, read, write, transaction status, info,
// the write audit trail and a WebSocket event stream at /api/v1/stream.
//
// Errors are rendered as
//
//	{"http_code": 404, "error_id": "DeviceNotFound", "description": "...", "timestamp": "...", "context": "..."}
//
// where error_id is the command error kind.
//
// When security.jwt.secret is set every route except /test and /version
// requires an HS256 bearer token. The stream also accepts the token in the
// token query parameter, since browsers cannot set headers on WebSocket
// requests.
package api
