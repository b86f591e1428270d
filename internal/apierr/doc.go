// Package apierr classifies every failure raised while serving a request
// and turns it into the one response shape clients see:
//
//	{"code": "...", "message": "..."}
//
// Middleware and handlers never write error responses themselves. They pass
// the error to Write, which resolves it through the Chain stored in the
// request context. The Chain tries its resolvers in order (validation,
// malformed body, domain) and ends in a fallback that logs the fault,
// reports it, and answers 500 with the request's tracking id.
package apierr
