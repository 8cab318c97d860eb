// Package httpapi is the HTTP boundary of the engine.
//
// NewHandler builds a chi router over a ports.Engine. Every /v1 route sits
// behind a Gate that authenticates bearer API keys, checks the route's scope
// and applies the key's rate limit. Usage of authenticated calls is written
// after the response through a bg.Runner.
//
// Server runs the handler over plain HTTP or, in spiffe mode, mutual TLS with
// SVIDs fetched from the SPIRE Workload API. The client SPIFFE ID of a TLS
// request is available through GetSPIFFEID.
//
// Errors map onto stable codes:
//
//	ports.ErrNotFound             404 {"error":"not_found"}
//	ports.ErrConflict             409 {"error":"conflict"}
//	domain.ErrUnsupportedPlatform 400 {"error":"unsupported_platform"}
//	anything else                 500 {"error":"internal_error"}
package httpapi
