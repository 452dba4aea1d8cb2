package local

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/keysai/go-auth"
	"github.com/keysai/go-auth/tokenstore"
	"github.com/uptrace/bun"
)

// Config holds local backend options.
type Config struct {
	SigningKey string
	Issuer     string
	// TokenTTL defaults to 24h.
	TokenTTL time.Duration
	// PasswordCost is the bcrypt cost, 0 uses the build default.
	PasswordCost int
	// AutoConfirm confirms and signs in new accounts immediately.
	AutoConfirm bool
	// HashIDs derives user ids from the email address.
	HashIDs bool
	// MaxLoginAttempts is the maximun number of failed attempts a user gets
	// in CoolDownPeriod.
	MaxLoginAttempts int
	CoolDownPeriod   string
	// ResetPeriod is how long a password reset link stays valid.
	ResetPeriod string
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = "go-auth"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.MaxLoginAttempts == 0 {
		c.MaxLoginAttempts = 5
	}
	if c.CoolDownPeriod == "" {
		c.CoolDownPeriod = "24h"
	}
	if c.ResetPeriod == "" {
		c.ResetPeriod = "24h"
	}
	return c
}

// Option configures a Backend.
type Option func(*Backend)

// WithTokenStore sets where the session token is kept. Defaults to memory.
func WithTokenStore(store auth.TokenStore) Option {
	return func(b *Backend) {
		if store != nil {
			b.tokens = store
		}
	}
}

// WithMailer sets the account mailer. Defaults to logging the links.
func WithMailer(m Mailer) Option {
	return func(b *Backend) {
		if m != nil {
			b.mailer = m
		}
	}
}

// WithClock overrides time.Now for tokens, cool downs and reset expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger auth.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend is an auth.Backend storing accounts with Bun.
type Backend struct {
	repo   RepositoryManager
	cfg    Config
	tokens auth.TokenStore
	mailer Mailer
	logger auth.Logger
	issuer tokenIssuer
	events auth.Broadcaster
	now    func() time.Time
}

var _ auth.Backend = (*Backend)(nil)

// New creates a backend on db. Call Migrate first.
func New(db *bun.DB, cfg Config, opts ...Option) (*Backend, error) {
	if db == nil {
		return nil, goerrors.New("local: database is required", goerrors.CategoryBadInput)
	}
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return nil, goerrors.New("local: signing key is required", goerrors.CategoryBadInput)
	}

	cfg = cfg.withDefaults()
	b := &Backend{
		repo:   NewRepositoryManager(db),
		cfg:    cfg,
		tokens: tokenstore.NewMemory(),
		logger: auth.DefaultLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.mailer == nil {
		b.mailer = logMailer{logger: b.logger}
	}

	b.issuer = tokenIssuer{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    b.now,
	}

	return b, nil
}

// CurrentSession returns the session held in the token store. Expired or
// invalid tokens are cleared and reported as no session.
func (b *Backend) CurrentSession(ctx context.Context) (*auth.Session, error) {
	raw, claims, err := b.currentClaims(ctx)
	if err != nil || claims == nil {
		return nil, err
	}

	user, err := b.repo.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			b.logger.Info("session user no longer exists, clearing token", "user_id", claims.Subject)
			return nil, b.tokens.Clear(ctx)
		}
		return nil, err
	}

	session := sessionFromClaims(raw, claims)
	session.Email = user.Email
	return session, nil
}

func (b *Backend) OnSessionChange(listener auth.SessionListener) auth.Subscription {
	return b.events.Subscribe(listener)
}

func (b *Backend) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.SignUpResult, error) {
	email = normalizeEmail(email)

	if _, err := b.repo.Users().GetByIdentifier(ctx, email); err == nil {
		return nil, auth.WrapError(auth.ErrEmailTaken, nil, map[string]any{"email": email})
	} else if !isNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	hash, err := HashPassword(password, b.cfg.PasswordCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	now := b.now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	if b.cfg.HashIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}
	if b.cfg.AutoConfirm {
		user.EmailVerified = true
		user.ConfirmedAt = &now
	} else {
		user.ConfirmationToken = uuid.NewString()
	}

	if user, err = b.repo.Users().Create(ctx, user); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	result := &auth.SignUpResult{
		UserID:               user.ID.String(),
		ConfirmationRequired: !user.EmailVerified,
	}

	if result.ConfirmationRequired {
		link := withQuery(opts.VerificationRedirect, "token", user.ConfirmationToken)
		if err := b.mailer.Send(ctx, Message{Kind: MessageConfirmEmail, To: email, Link: link}); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send confirmation email")
		}
		return result, nil
	}

	if _, err := b.startSession(ctx, user); err != nil {
		return nil, err
	}
	return result, nil
}

// SignInWithPassword checks the credentials, enforces the login cool down
// and stores a new session token.
func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	user, err := b.repo.Users().GetByIdentifier(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return auth.WrapError(auth.ErrInvalidCredentials, nil, map[string]any{"email": email})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	if user.LoginAttemptAt != nil {
		within, err := withinPeriod(*user.LoginAttemptAt, b.cfg.CoolDownPeriod, b.now())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculdate login attempt cooldown")
		}
		if !within {
			user.LoginAttempts = 0
		}
	}

	if user.LoginAttempts >= b.cfg.MaxLoginAttempts {
		return auth.WrapError(auth.ErrTooManyAttempts, nil, map[string]any{"email": email})
	}

	ok, err := ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password")
	}
	if !ok {
		if err := b.trackAttemptedLogin(ctx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return auth.WrapError(auth.ErrInvalidCredentials, nil, map[string]any{"email": email})
	}

	if !user.EmailVerified {
		return auth.WrapError(auth.ErrUnverifiedEmail, nil, map[string]any{"email": email})
	}

	if err := b.trackSuccessfulLogin(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login")
	}

	_, err = b.startSession(ctx, user)
	return err
}

// SignOut clears the stored token. Signing out without a session succeeds.
func (b *Backend) SignOut(ctx context.Context) error {
	raw, err := b.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	if err := b.tokens.Clear(ctx); err != nil {
		return err
	}

	b.events.Publish(auth.SessionEvent{Type: auth.EventSignedOut})
	return nil
}

// SendPasswordReset records a reset request and mails the link. Unknown
// emails succeed without sending anything.
func (b *Backend) SendPasswordReset(ctx context.Context, email string, opts auth.PasswordResetOptions) error {
	email = normalizeEmail(email)

	user, err := b.repo.Users().GetByIdentifier(ctx, email)
	if err != nil {
		if isNotFound(err) {
			b.logger.Info("password reset for unknown email", "email", email)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	now := b.now()
	reset := &PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		Email:     email,
		Status:    ResetRequestedStatus,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	if reset, err = b.repo.PasswordResets().Create(ctx, reset); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset")
	}

	link := withQuery(opts.RedirectTo, "token", reset.ID.String())
	if err := b.mailer.Send(ctx, Message{Kind: MessagePasswordReset, To: email, Link: link}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send password reset email")
	}
	return nil
}

// EmailConfirmationStatus only answers for the signed-in account. Any other
// lookup is denied; use NewDirectory for privileged lookups.
func (b *Backend) EmailConfirmationStatus(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)

	_, claims, err := b.currentClaims(ctx)
	if err != nil {
		return false, err
	}
	if claims == nil || normalizeEmail(claims.Email) != email {
		return false, auth.WrapError(auth.ErrAccessDenied, nil, map[string]any{"email": email})
	}

	return lookupConfirmation(ctx, b.repo, email)
}

// ConfirmEmail completes verification with the token from the confirmation
// link.
func (b *Backend) ConfirmEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.WrapError(auth.ErrTokenMalformed, nil, map[string]any{"description": "Missing confirmation token"})
	}

	user := &User{}
	err := b.repo.DB().NewSelect().
		Model(user).
		Where("?TableAlias.confirmation_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return auth.WrapError(auth.ErrIdentityNotFound, err, map[string]any{"description": "Invalid or expired confirmation link"})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up confirmation token")
	}

	now := b.now()
	user.EmailVerified = true
	user.ConfirmedAt = &now
	user.ConfirmationToken = ""
	user.UpdatedAt = &now

	_, err = b.repo.DB().NewUpdate().
		Model(user).
		Column("is_email_verified", "confirmed_at", "confirmation_token", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email")
	}

	b.logger.Info("email confirmed", "user_id", user.ID.String())
	return nil
}

// CompletePasswordReset sets a new password using a reset id from the reset
// link.
func (b *Backend) CompletePasswordReset(ctx context.Context, resetID, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return auth.WrapError(auth.ErrInvalidSignUp, err, map[string]any{"description": err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset := &PasswordReset{}
		err := tx.NewSelect().Model(reset).Where("?TableAlias.id = ?", resetID).Limit(1).Scan(ctx)
		if err != nil {
			if isNotFound(err) {
				return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
					WithTextCode(auth.TextCodeIdentityNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if reset.Status != ResetRequestedStatus {
			return goerrors.New("password reset token has already been used", goerrors.CategoryConflict).
				WithTextCode("TOKEN_ALREADY_USED")
		}

		if reset.CreatedAt == nil {
			return goerrors.New("password reset record is missing creation date", goerrors.CategoryInternal)
		}

		within, err := withinPeriod(*reset.CreatedAt, b.cfg.ResetPeriod, b.now())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token expiration period")
		}
		if !within {
			return auth.WrapError(auth.ErrTokenExpired, nil, map[string]any{"description": "password reset token has expired"})
		}

		hash, err := HashPassword(password, b.cfg.PasswordCost)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		now := b.now()
		_, err = tx.NewUpdate().
			Model((*User)(nil)).
			Set("password_hash = ?", hash).
			Set("login_attempts = 0").
			Set("login_attempt_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", reset.UserID).
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		reset.Status = ResetChangedStatus
		reset.ResetedAt = &now
		reset.UpdatedAt = &now
		_, err = tx.NewUpdate().
			Model(reset).
			Column("status", "reseted_at", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password reset status")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	return nil
}

// RefreshSession reissues the session token and pushes a refresh event.
func (b *Backend) RefreshSession(ctx context.Context) (*auth.Session, error) {
	_, claims, err := b.currentClaims(ctx)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, auth.WrapError(auth.ErrTokenMalformed, nil, map[string]any{"description": "No active session"})
	}

	user, err := b.repo.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session user")
	}

	return b.issue(ctx, user, auth.EventTokenRefreshed)
}

func (b *Backend) startSession(ctx context.Context, user *User) (*auth.Session, error) {
	return b.issue(ctx, user, auth.EventSignedIn)
}

func (b *Backend) issue(ctx context.Context, user *User, kind auth.SessionEventType) (*auth.Session, error) {
	raw, expires, err := b.issuer.mint(user, b.now())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	if err := b.tokens.Save(ctx, raw); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store session token")
	}

	session := &auth.Session{
		UserID:      user.ID.String(),
		Email:       user.Email,
		AccessToken: raw,
		ExpiresAt:   &expires,
	}
	b.events.Publish(auth.SessionEvent{Type: kind, Session: session})
	return session, nil
}

func (b *Backend) currentClaims(ctx context.Context) (string, *SessionClaims, error) {
	raw, err := b.tokens.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	if raw == "" {
		return "", nil, nil
	}

	claims, err := b.issuer.parse(raw)
	if err != nil {
		b.logger.Info("discarding stored session token", "error", err)
		return "", nil, b.tokens.Clear(ctx)
	}
	return raw, claims, nil
}

func (b *Backend) trackAttemptedLogin(ctx context.Context, user *User) error {
	now := b.now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now

	_, err := b.repo.DB().NewUpdate().
		Model(user).
		Column("login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)
	return err
}

func (b *Backend) trackSuccessfulLogin(ctx context.Context, user *User) error {
	now := b.now()
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	user.LoggedInAt = &now

	_, err := b.repo.DB().NewUpdate().
		Model(user).
		Column("login_attempts", "login_attempt_at", "loggedin_at").
		WherePK().
		Exec(ctx)
	return err
}

func lookupConfirmation(ctx context.Context, repo RepositoryManager, email string) (bool, error) {
	user, err := repo.Users().GetByIdentifier(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return false, auth.WrapError(auth.ErrIdentityNotFound, err, map[string]any{"email": email})
		}
		return false, err
	}
	return user.EmailVerified, nil
}

func withQuery(base, key, value string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
