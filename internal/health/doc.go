// Package health holds the readiness and health probes served on the ops
// port, and the shutdown gate that drains the API before it stops.
//
// [Fixed] is a static probe and [CheckFunc] adapts a plain function. Liveness
// of the public API itself is answered by httpmw.Liveness and never consults
// a probe.
package health
