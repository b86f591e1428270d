// Package httpmw provides the stages of the API ingress pipeline.
//
// httpserver.NewHandler composes them outermost first: security headers,
// error chain, request ID, OTEL tracing, trace response headers, request
// logger, panic recovery, liveness, metrics, content-type normalization,
// body decoding, origin policy, cache directive, request observation,
// session binding, schema validation, and the chi router.
//
// Stages that reject a request hand the error to apierr.Write and never
// render a response themselves. Headers and bodies only reach logs through
// the redaction rules in Observe.
package httpmw
