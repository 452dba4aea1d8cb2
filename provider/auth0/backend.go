package auth0

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/auth0/go-auth0/authentication/database"
	"github.com/auth0/go-auth0/authentication/oauth"
	"github.com/keysai/go-auth"
	"github.com/keysai/go-auth/tokenstore"
)

// tokenRecord is what the backend keeps in the token store.
type tokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Option configures a Backend.
type Option func(*Backend)

func WithTokenStore(store auth.TokenStore) Option {
	return func(b *Backend) {
		if store != nil {
			b.tokens = store
		}
	}
}

func WithVerifier(v Verifier) Option {
	return func(b *Backend) {
		if v != nil {
			b.verifier = v
		}
	}
}

func WithIdentityAPI(api IdentityAPI) Option {
	return func(b *Backend) {
		if api != nil {
			b.api = api
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Backend is an auth.Backend on top of an Auth0 database connection using
// the Resource Owner Password grant.
type Backend struct {
	cfg      Config
	api      IdentityAPI
	verifier Verifier
	tokens   auth.TokenStore
	logger   auth.Logger
	events   auth.Broadcaster
	now      func() time.Time
}

var _ auth.Backend = (*Backend)(nil)

// New creates a backend. Without WithIdentityAPI and WithVerifier it builds
// the Auth0 SDK client and a JWKS validator from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	b := &Backend{
		cfg:    cfg.withDefaults(),
		tokens: tokenstore.NewMemory(),
		logger: auth.DefaultLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.api == nil {
		api, err := NewIdentityAPI(ctx, b.cfg)
		if err != nil {
			return nil, err
		}
		b.api = api
	}

	if b.verifier == nil {
		v, err := NewTokenValidator(b.cfg)
		if err != nil {
			return nil, err
		}
		b.verifier = v
	}

	return b, nil
}

// CurrentSession validates the stored access token, refreshing it once when
// it has expired and a refresh token is available.
func (b *Backend) CurrentSession(ctx context.Context) (*auth.Session, error) {
	rec, err := b.load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}

	claims, err := b.verifier.Verify(ctx, rec.AccessToken)
	if err == nil {
		return b.session(rec, claims), nil
	}

	if auth.IsTokenExpiredError(err) && rec.RefreshToken != "" {
		session, rerr := b.refresh(ctx, rec)
		if rerr == nil {
			return session, nil
		}
		b.logger.Warn("auth0 refresh failed", "error", rerr)
	}

	b.logger.Info("discarding stored auth0 token", "error", err)
	return nil, b.tokens.Clear(ctx)
}

func (b *Backend) OnSessionChange(listener auth.SessionListener) auth.Subscription {
	return b.events.Subscribe(listener)
}

func (b *Backend) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.SignUpResult, error) {
	email = strings.TrimSpace(email)

	res, err := b.api.Signup(ctx, database.SignupRequest{
		Connection: b.cfg.Connection,
		Email:      email,
		Password:   password,
	})
	if err != nil {
		return nil, mapSignUpError(err, email)
	}

	if opts.VerificationRedirect != "" {
		// Auth0 sends the verification email from the tenant template.
		b.logger.Debug("auth0 ignores per request verification redirects", "redirect", opts.VerificationRedirect)
	}

	out := &auth.SignUpResult{ConfirmationRequired: true}
	if res != nil {
		out.UserID = res.ID
		out.ConfirmationRequired = !res.EmailVerified
	}
	return out, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)

	set, err := b.api.LoginWithPassword(ctx, oauth.LoginWithPasswordRequest{
		Username: email,
		Password: password,
		Realm:    b.cfg.Connection,
		Scope:    b.cfg.Scope,
		Audience: b.cfg.audience(),
	})
	if err != nil {
		return mapLoginError(err, email)
	}

	session, err := b.store(ctx, set, email, "")
	if err != nil {
		return err
	}

	b.events.Publish(auth.SessionEvent{Type: auth.EventSignedIn, Session: session})
	return nil
}

// SignOut revokes the refresh token, if any, and forgets the session.
func (b *Backend) SignOut(ctx context.Context) error {
	rec, err := b.load(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if rec.RefreshToken != "" {
		if err := b.api.RevokeRefreshToken(ctx, oauth.RevokeRefreshTokenRequest{
			RefreshToken: rec.RefreshToken,
		}); err != nil {
			return err
		}
	}

	if err := b.tokens.Clear(ctx); err != nil {
		return err
	}

	b.events.Publish(auth.SessionEvent{Type: auth.EventSignedOut})
	return nil
}

func (b *Backend) SendPasswordReset(ctx context.Context, email string, opts auth.PasswordResetOptions) error {
	email = strings.TrimSpace(email)

	msg, err := b.api.ChangePassword(ctx, database.ChangePasswordRequest{
		Connection: b.cfg.Connection,
		Email:      email,
	})
	if err != nil {
		return err
	}

	b.logger.Info("auth0 password reset requested", "email", email, "response", msg, "redirect", opts.RedirectTo)
	return nil
}

// EmailConfirmationStatus answers from the signed-in user's token. Auth0
// has no public lookup, so any other email is denied; configure a
// Directory for those.
func (b *Backend) EmailConfirmationStatus(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)

	rec, err := b.load(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil || !strings.EqualFold(rec.Email, email) {
		return false, auth.WrapError(auth.ErrAccessDenied, nil, map[string]any{"email": email, "provider": "auth0"})
	}

	claims, err := b.verifier.Verify(ctx, rec.AccessToken)
	if err != nil {
		return false, err
	}
	return claims.EmailVerified, nil
}

// RefreshSession exchanges the stored refresh token for a new token set.
func (b *Backend) RefreshSession(ctx context.Context) (*auth.Session, error) {
	rec, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.RefreshToken == "" {
		return nil, auth.WrapError(auth.ErrTokenMalformed, nil, map[string]any{"description": "No refresh token available"})
	}
	return b.refresh(ctx, rec)
}

func (b *Backend) refresh(ctx context.Context, rec *tokenRecord) (*auth.Session, error) {
	set, err := b.api.RefreshToken(ctx, oauth.RefreshTokenRequest{
		RefreshToken: rec.RefreshToken,
		Scope:        b.cfg.Scope,
	})
	if err != nil {
		return nil, err
	}

	session, err := b.store(ctx, set, rec.Email, rec.RefreshToken)
	if err != nil {
		return nil, err
	}

	b.events.Publish(auth.SessionEvent{Type: auth.EventTokenRefreshed, Session: session})
	return session, nil
}

// store validates the new access token and persists the token set. Auth0
// may omit the refresh token on refresh, in which case prevRefresh is kept.
func (b *Backend) store(ctx context.Context, set *oauth.TokenSet, email, prevRefresh string) (*auth.Session, error) {
	if set == nil || set.AccessToken == "" {
		return nil, auth.WrapError(auth.ErrTokenMalformed, nil, map[string]any{"description": "Empty token response"})
	}

	claims, err := b.verifier.Verify(ctx, set.AccessToken)
	if err != nil {
		return nil, err
	}

	rec := &tokenRecord{
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		Email:        email,
		ExpiresAt:    b.now().Add(time.Duration(set.ExpiresIn) * time.Second),
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = prevRefresh
	}
	if claims.Email != "" {
		rec.Email = claims.Email
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := b.tokens.Save(ctx, string(raw)); err != nil {
		return nil, err
	}

	return b.session(rec, claims), nil
}

func (b *Backend) load(ctx context.Context) (*tokenRecord, error) {
	raw, err := b.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	rec := &tokenRecord{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil || rec.AccessToken == "" {
		b.logger.Warn("stored auth0 token is unreadable, clearing", "error", err)
		return nil, b.tokens.Clear(ctx)
	}
	return rec, nil
}

func (b *Backend) session(rec *tokenRecord, claims *Claims) *auth.Session {
	s := &auth.Session{
		UserID:      claims.Subject,
		Email:       rec.Email,
		AccessToken: rec.AccessToken,
	}
	switch {
	case claims.ExpiresAt != nil:
		exp := *claims.ExpiresAt
		s.ExpiresAt = &exp
	case !rec.ExpiresAt.IsZero():
		exp := rec.ExpiresAt
		s.ExpiresAt = &exp
	}
	return s
}
