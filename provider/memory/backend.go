package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keysai/go-auth"
)

// Operation names used by Calls and Fail.
const (
	OpCurrentSession     = "current_session"
	OpOnSessionChange    = "on_session_change"
	OpSignUp             = "sign_up"
	OpSignIn             = "sign_in_with_password"
	OpSignOut            = "sign_out"
	OpPasswordReset      = "send_password_reset"
	OpConfirmationStatus = "email_confirmation_status"
	OpDirectoryLookup    = "directory_lookup"
)

// Account is a stored account.
type Account struct {
	ID        string
	Email     string
	Password  string
	Confirmed bool
	CreatedAt time.Time
}

// ResetRequest records a password reset email.
type ResetRequest struct {
	Email      string
	RedirectTo string
	Known      bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithConfirmationRequired controls whether new accounts must confirm their
// email before signing in. Defaults to true.
func WithConfirmationRequired(required bool) Option {
	return func(b *Backend) {
		b.requireConfirmation = required
	}
}

// WithDeniedLookups makes EmailConfirmationStatus fail with an access denied
// error, as a row level policy would for anonymous callers.
func WithDeniedLookups() Option {
	return func(b *Backend) {
		b.denyLookups = true
	}
}

// WithProbeHook runs hook while CurrentSession is in flight, before it reads
// the session.
func WithProbeHook(hook func(*Backend)) Option {
	return func(b *Backend) {
		b.probeHook = hook
	}
}

// WithSessionTTL sets the expiry of sessions created by sign in.
func WithSessionTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.sessionTTL = ttl
	}
}

// WithClock sets the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Backend is an in-process auth.Backend. It is meant for development and
// tests: it counts calls, injects failures and can push arbitrary events.
type Backend struct {
	events auth.Broadcaster

	mu                  sync.Mutex
	accounts            map[string]*Account
	session             *auth.Session
	calls               map[string]int
	failures            map[string]error
	resets              []ResetRequest
	signUps             []auth.SignUpOptions
	requireConfirmation bool
	denyLookups         bool
	sessionTTL          time.Duration
	probeHook           func(*Backend)
	now                 func() time.Time
}

var _ auth.Backend = (*Backend)(nil)

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		accounts:            map[string]*Account{},
		calls:               map[string]int{},
		failures:            map[string]error{},
		requireConfirmation: true,
		sessionTTL:          time.Hour,
		now:                 time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Seed stores an account and returns it.
func (b *Backend) Seed(email, password string, confirmed bool) Account {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := &Account{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		Password:  password,
		Confirmed: confirmed,
		CreatedAt: b.now(),
	}
	b.accounts[key(email)] = acc
	return *acc
}

// Confirm marks the account's email as verified.
func (b *Backend) Confirm(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[key(email)]
	if !ok {
		return auth.WrapError(auth.ErrIdentityNotFound, nil, map[string]any{"email": email})
	}
	acc.Confirmed = true
	return nil
}

// Emit replaces the current session with evt.Session and pushes evt to all
// listeners.
func (b *Backend) Emit(evt auth.SessionEvent) {
	b.mu.Lock()
	b.session = cloneSession(evt.Session)
	b.mu.Unlock()

	b.events.Publish(evt)
}

// Fail makes op return err until cleared with a nil err.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Listeners returns the number of live session listeners.
func (b *Backend) Listeners() int {
	return b.events.Len()
}

// Resets returns the password reset requests received so far.
func (b *Backend) Resets() []ResetRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ResetRequest, len(b.resets))
	copy(out, b.resets)
	return out
}

// SignUps returns the options passed with each sign up.
func (b *Backend) SignUps() []auth.SignUpOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]auth.SignUpOptions, len(b.signUps))
	copy(out, b.signUps)
	return out
}

// Account returns the stored account for email.
func (b *Backend) Account(email string) (Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[key(email)]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

func (b *Backend) CurrentSession(ctx context.Context) (*auth.Session, error) {
	if err := b.begin(OpCurrentSession); err != nil {
		return nil, err
	}

	if b.probeHook != nil {
		b.probeHook(b)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneSession(b.session), nil
}

func (b *Backend) OnSessionChange(listener auth.SessionListener) auth.Subscription {
	b.mu.Lock()
	b.calls[OpOnSessionChange]++
	b.mu.Unlock()

	return b.events.Subscribe(listener)
}

func (b *Backend) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.SignUpResult, error) {
	if err := b.begin(OpSignUp); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.signUps = append(b.signUps, opts)
	if _, exists := b.accounts[key(email)]; exists {
		b.mu.Unlock()
		return nil, auth.WrapError(auth.ErrEmailTaken, nil, map[string]any{"email": email})
	}

	acc := &Account{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		Password:  password,
		Confirmed: !b.requireConfirmation,
		CreatedAt: b.now(),
	}
	b.accounts[key(email)] = acc

	var session *auth.Session
	if acc.Confirmed {
		session = b.newSessionLocked(acc)
	}
	b.mu.Unlock()

	if session != nil {
		b.events.Publish(auth.SessionEvent{Type: auth.EventSignedIn, Session: cloneSession(session)})
	}

	return &auth.SignUpResult{
		UserID:               acc.ID,
		ConfirmationRequired: !acc.Confirmed,
	}, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) error {
	if err := b.begin(OpSignIn); err != nil {
		return err
	}

	b.mu.Lock()
	acc, ok := b.accounts[key(email)]
	if !ok || acc.Password != password {
		b.mu.Unlock()
		return auth.WrapError(auth.ErrInvalidCredentials, nil, map[string]any{"email": email})
	}
	if !acc.Confirmed {
		b.mu.Unlock()
		return auth.WrapError(auth.ErrUnverifiedEmail, nil, map[string]any{"email": email})
	}
	session := b.newSessionLocked(acc)
	b.mu.Unlock()

	b.events.Publish(auth.SessionEvent{Type: auth.EventSignedIn, Session: cloneSession(session)})
	return nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	if err := b.begin(OpSignOut); err != nil {
		return err
	}

	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return nil
	}
	b.session = nil
	b.mu.Unlock()

	b.events.Publish(auth.SessionEvent{Type: auth.EventSignedOut})
	return nil
}

// SendPasswordReset records the request. Unknown emails succeed so callers
// cannot enumerate accounts.
func (b *Backend) SendPasswordReset(ctx context.Context, email string, opts auth.PasswordResetOptions) error {
	if err := b.begin(OpPasswordReset); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, known := b.accounts[key(email)]
	b.resets = append(b.resets, ResetRequest{
		Email:      strings.TrimSpace(email),
		RedirectTo: opts.RedirectTo,
		Known:      known,
	})
	return nil
}

func (b *Backend) EmailConfirmationStatus(ctx context.Context, email string) (bool, error) {
	if err := b.begin(OpConfirmationStatus); err != nil {
		return false, err
	}

	b.mu.Lock()
	deny := b.denyLookups
	b.mu.Unlock()

	if deny {
		return false, auth.WrapError(auth.ErrAccessDenied, nil, map[string]any{"email": email})
	}
	return b.lookup(email)
}

// Directory returns a privileged lookup that ignores WithDeniedLookups.
func (b *Backend) Directory() auth.AdminDirectory {
	return auth.AdminDirectoryFunc(func(ctx context.Context, email string) (bool, error) {
		if err := b.begin(OpDirectoryLookup); err != nil {
			return false, err
		}
		return b.lookup(email)
	})
}

func (b *Backend) lookup(email string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[key(email)]
	if !ok {
		return false, auth.WrapError(auth.ErrIdentityNotFound, nil, map[string]any{"email": email})
	}
	return acc.Confirmed, nil
}

func (b *Backend) begin(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	return b.failures[op]
}

func (b *Backend) newSessionLocked(acc *Account) *auth.Session {
	expires := b.now().Add(b.sessionTTL)
	b.session = &auth.Session{
		UserID:      acc.ID,
		Email:       acc.Email,
		AccessToken: uuid.NewString(),
		ExpiresAt:   &expires,
	}
	return b.session
}

func cloneSession(s *auth.Session) *auth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
