// Package auth keeps an application's view of "who is signed in" in sync with
// an external identity provider, and guards routes based on that view.
//
// Session store:
//   - SessionStore is the single authority on the current Identity. It is
//     constructed once with a Backend and injected wherever it is needed.
//   - Start registers for provider session events before it probes for an
//     existing session, so no event is lost during startup. The store becomes
//     Ready exactly once, even when the probe fails.
//   - Sign-up, sign-in, sign-out and password reset suspend on the provider.
//     Identity changes only arrive through provider events, never from the
//     operation results themselves.
//
// Route guard:
//   - Decide maps (ready, identity) to Loading, Redirect or Render.
//   - RouteGuard applies that decision to net/http handlers and go-router
//     routes. While loading it serves a placeholder, when signed out it
//     redirects to the login route and remembers where the visitor was going.
//
// Backends:
//   - provider/memory is an in-process backend for development and tests.
//   - provider/local persists accounts with Bun and issues HS256 tokens.
//   - provider/auth0 talks to an Auth0 tenant.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue without
//     blocking authentication.
package auth
