// Package server hosts the Fiber HTTP service: request-ID and recover
// middleware, the catch-all route that hands every non-diagnostics path to
// the mirror handler, and the shared upstream http.Client. Diagnostics live
// under the reserved /-/ prefix and are registered by the routes subpackage
// so the mirror handler never sees them. Keep exports narrow and accept
// explicit dependencies; main wires everything together.
package server
