package auth

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// Decision is what a guarded route should do for the current session state.
type Decision int

const (
	// DecisionLoading renders a non-interactive placeholder.
	DecisionLoading Decision = iota
	// DecisionRedirect sends the visitor to the login route.
	DecisionRedirect
	// DecisionRender renders the protected content.
	DecisionRender
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	default:
		return "unknown"
	}
}

// Decide maps session readiness and identity to a route decision. While the
// store is not ready the identity is ignored.
func Decide(ready bool, identity *Identity) Decision {
	if !ready {
		return DecisionLoading
	}
	if identity == nil {
		return DecisionRedirect
	}
	return DecisionRender
}

// RejectedRouteTTL is how long the guard remembers the route a signed out
// visitor asked for.
var RejectedRouteTTL = 5 * time.Minute

// RouteGuard gates handlers on the session state. It keeps no state of its
// own; every request reads a fresh snapshot.
type RouteGuard struct {
	state  StateReader
	cfg    Config
	logger Logger
}

// GuardOption configures a RouteGuard.
type GuardOption func(*RouteGuard)

// WithGuardLogger sets the guard logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRouteGuard creates a guard reading from state.
func NewRouteGuard(state StateReader, cfg Config, opts ...GuardOption) *RouteGuard {
	if state == nil {
		panic("auth: route guard requires a state reader")
	}
	if cfg == nil {
		cfg = DefaultOptions("")
	}

	g := &RouteGuard{
		state:  state,
		cfg:    cfg,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Decide evaluates the current state.
func (g *RouteGuard) Decide() Decision {
	st := g.state.State()
	return Decide(st.Ready, st.Identity)
}

// Middleware guards a net/http handler.
func (g *RouteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch g.Decide() {
		case DecisionLoading:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, g.placeholder())
		case DecisionRedirect:
			g.logger.Info("unauthenticated request, redirecting to login", "path", r.URL.RequestURI())
			http.SetCookie(w, &http.Cookie{
				Name:     g.cfg.GetRejectedRouteKey(),
				Value:    r.URL.RequestURI(),
				Path:     "/",
				Expires:  time.Now().Add(RejectedRouteTTL),
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
			})
			http.Redirect(w, r, g.cfg.GetLoginRoute(), redirectStatus(r.Method))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ProtectedRoute guards go-router routes with the same decisions as
// Middleware.
func (g *RouteGuard) ProtectedRoute() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			switch g.Decide() {
			case DecisionLoading:
				ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
				ctx.SetHeader("Cache-Control", "no-store")
				ctx.SetHeader("Retry-After", "1")
				return ctx.Status(http.StatusServiceUnavailable).SendString(g.placeholder())
			case DecisionRedirect:
				g.logger.Info("unauthenticated request, redirecting to login", "path", ctx.OriginalURL())
				ctx.Cookie(&router.Cookie{
					Name:     g.cfg.GetRejectedRouteKey(),
					Value:    ctx.OriginalURL(),
					Expires:  time.Now().Add(RejectedRouteTTL),
					HTTPOnly: true,
					Secure:   true,
					SameSite: "Lax",
				})
				return ctx.Redirect(g.cfg.GetLoginRoute(), redirectStatus(ctx.Method()))
			default:
				return next(ctx)
			}
		}
	}
}

func (g *RouteGuard) placeholder() string {
	msg := g.cfg.GetLoadingMessage()
	if msg == "" {
		msg = "Loading..."
	}
	return `<!doctype html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"></head>` +
		`<body><div role="status" aria-busy="true">` + html.EscapeString(msg) + `</div></body></html>`
}

// A GET keeps 302 so the login page replaces the guarded URL; other methods
// get 303 so the follow-up is a GET.
func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
