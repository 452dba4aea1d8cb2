package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-print"
	"golang.org/x/sync/singleflight"
)

// StateListener observes committed session state snapshots.
type StateListener func(SessionState)

// StoreOption configures a SessionStore.
type StoreOption func(*SessionStore)

// WithDirectory sets the privileged lookup used when the backend denies a
// confirmation status query.
func WithDirectory(dir AdminDirectory) StoreOption {
	return func(s *SessionStore) {
		s.directory = dir
	}
}

// WithLogger sets the store logger.
func WithLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreNotifier sets the notifier used when the call context has none.
func WithStoreNotifier(n Notifier) StoreOption {
	return func(s *SessionStore) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithActivitySink wires an audit sink.
func WithActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithDebug dumps every committed state to the debug log.
func WithDebug(debug bool) StoreOption {
	return func(s *SessionStore) {
		s.debug = debug
	}
}

// WithClock overrides the time source used to discard expired sessions.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// SessionStore is the process-wide authority on who is signed in. It bridges
// an asynchronous Backend to synchronous readers. Identity is only written by
// the initial probe and by provider events; operations never set it directly.
type SessionStore struct {
	backend   Backend
	cfg       Config
	directory AdminDirectory
	logger    Logger
	notifier  Notifier
	activity  ActivitySink
	debug     bool
	now       func() time.Time

	mu        sync.Mutex
	state     SessionState
	eventSeq  uint64
	expiresAt *time.Time
	expiry    *time.Timer
	sub      Subscription
	watchers []stateWatcher
	nextID   uint64
	stopOnce sync.Once

	signOuts singleflight.Group
}

type stateWatcher struct {
	id uint64
	fn StateListener
}

// NewSessionStore creates a store bound to backend. The store does nothing
// until Start is called.
func NewSessionStore(backend Backend, cfg Config, opts ...StoreOption) *SessionStore {
	if backend == nil {
		panic("auth: session store requires a backend")
	}

	if cfg == nil {
		cfg = DefaultOptions("")
	}

	s := &SessionStore{
		backend:  backend,
		cfg:      cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}

	return s
}

// Start subscribes to provider session events and then probes for an
// existing session. When the probe settles the store becomes ready, even if
// the probe failed; in that case the store is usable and the returned error
// wraps the probe failure. An event applied while the probe was in flight
// wins over the probe result.
func (s *SessionStore) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	switch s.state.Phase {
	case PhaseTerminated:
		s.mu.Unlock()
		return WrapError(ErrStoreStopped, nil, nil)
	case PhaseInitializing, PhaseReady:
		s.mu.Unlock()
		return WrapError(ErrStoreAlreadyStarted, nil, nil)
	}
	s.state.Phase = PhaseInitializing
	snap, watchers := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap, watchers)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session store init panic, releasing subscription", "panic", r)
			s.Stop()
			panic(r)
		}
	}()

	sub := s.backend.OnSessionChange(s.handleEvent)

	s.mu.Lock()
	if s.state.Phase == PhaseTerminated {
		s.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return WrapError(ErrStoreStopped, nil, nil)
	}
	s.sub = sub
	seq := s.eventSeq
	s.mu.Unlock()

	session, probeErr := s.backend.CurrentSession(ctx)

	s.mu.Lock()
	if s.state.Phase == PhaseTerminated {
		s.mu.Unlock()
		return WrapError(ErrStoreStopped, nil, nil)
	}

	switch {
	case s.eventSeq != seq:
		s.logger.Debug("session event arrived during probe, keeping event identity")
	case probeErr == nil:
		s.setSessionLocked(session)
	}

	s.state.Ready = true
	s.state.Phase = PhaseReady
	snap, watchers = s.commitLocked()
	s.mu.Unlock()
	s.publish(snap, watchers)

	if probeErr != nil {
		s.logger.Error("session probe failed, store ready without identity", "error", probeErr)
		return NewProviderError("current_session", probeErr)
	}

	s.logger.Info("session store ready", "signed_in", snap.SignedIn())
	return nil
}

// Run starts the store and stops it when ctx is done.
func (s *SessionStore) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil && !IsProviderError(err) {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop releases the provider subscription. It is safe to call more than
// once and from any goroutine. Events delivered after Stop are ignored.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		sub := s.sub
		s.sub = nil
		s.state.Phase = PhaseTerminated
		s.stopExpiryLocked()
		snap, watchers := s.commitLocked()
		s.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}

		s.publish(snap, watchers)
		s.logger.Info("session store stopped")
	})
}

// State returns the current snapshot. A session whose expiry has passed is
// cleared before the snapshot is taken.
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	if s.sessionExpiredLocked() {
		snap, watchers := s.clearExpiredLocked()
		s.mu.Unlock()
		s.afterExpiry(snap, watchers)
		return snap
	}
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ready reports whether the first session probe has settled.
func (s *SessionStore) Ready() bool {
	return s.State().Ready
}

// Identity returns the signed-in identity or nil.
func (s *SessionStore) Identity() *Identity {
	return s.State().Identity
}

// Subscribe registers fn for every committed state change. Snapshots are
// delivered outside the store lock; concurrent writers may deliver out of
// order, so observers should compare Version.
func (s *SessionStore) Subscribe(fn StateListener) Subscription {
	if fn == nil {
		return SubscriptionFunc(nil)
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, stateWatcher{id: id, fn: fn})
	s.mu.Unlock()

	return SubscriptionFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w.id == id {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				return
			}
		}
	})
}

func (s *SessionStore) handleEvent(evt SessionEvent) {
	s.mu.Lock()
	if phase := s.state.Phase; phase == PhaseTerminated || phase == PhaseUninitialized {
		s.mu.Unlock()
		s.logger.Debug("ignoring session event", "type", evt.Type, "phase", phase.String())
		return
	}

	s.eventSeq++
	s.setSessionLocked(evt.Session)
	snap, watchers := s.commitLocked()
	s.mu.Unlock()

	s.publish(snap, watchers)

	event := ActivityEvent{
		EventType: ActivityEventSessionChanged,
		Metadata:  map[string]any{"event": string(evt.Type)},
	}
	if snap.Identity != nil {
		event.UserID = snap.Identity.ID
		event.Email = snap.Identity.Email
	}
	s.record(context.Background(), event)
}

// setSessionLocked replaces the identity and re-arms the expiry timer for
// the new session.
func (s *SessionStore) setSessionLocked(session *Session) {
	s.state.Identity = s.identityFrom(session)
	s.expiresAt = nil
	if s.state.Identity != nil && session.ExpiresAt != nil {
		exp := *session.ExpiresAt
		s.expiresAt = &exp
	}
	s.armExpiryLocked()
}

func (s *SessionStore) armExpiryLocked() {
	s.stopExpiryLocked()
	if s.expiresAt == nil || s.state.Phase == PhaseTerminated {
		return
	}
	s.expiry = time.AfterFunc(s.expiresAt.Sub(s.now()), s.expireSession)
}

func (s *SessionStore) stopExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *SessionStore) sessionExpiredLocked() bool {
	return s.state.Phase != PhaseTerminated &&
		s.state.Identity != nil &&
		s.expiresAt != nil &&
		!s.now().Before(*s.expiresAt)
}

// expireSession runs on the expiry timer. The store clock is authoritative:
// if it has not reached the expiry yet the timer is armed again.
func (s *SessionStore) expireSession() {
	s.mu.Lock()
	if s.state.Phase == PhaseTerminated || s.state.Identity == nil || s.expiresAt == nil {
		s.mu.Unlock()
		return
	}
	if !s.sessionExpiredLocked() {
		s.armExpiryLocked()
		s.mu.Unlock()
		return
	}
	snap, watchers := s.clearExpiredLocked()
	s.mu.Unlock()
	s.afterExpiry(snap, watchers)
}

func (s *SessionStore) clearExpiredLocked() (SessionState, []stateWatcher) {
	s.eventSeq++
	s.state.Identity = nil
	s.expiresAt = nil
	s.stopExpiryLocked()
	return s.commitLocked()
}

func (s *SessionStore) afterExpiry(snap SessionState, watchers []stateWatcher) {
	s.logger.Info("session expired, clearing identity")
	s.publish(snap, watchers)
	s.record(context.Background(), ActivityEvent{
		EventType: ActivityEventSessionChanged,
		Metadata:  map[string]any{"event": "expired"},
	})
}

func (s *SessionStore) identityFrom(session *Session) *Identity {
	if session == nil || session.UserID == "" {
		return nil
	}
	if session.Expired(s.now()) {
		return nil
	}
	return session.Identity()
}

func (s *SessionStore) commitLocked() (SessionState, []stateWatcher) {
	s.state.Version++
	watchers := make([]stateWatcher, len(s.watchers))
	copy(watchers, s.watchers)
	return s.snapshotLocked(), watchers
}

func (s *SessionStore) snapshotLocked() SessionState {
	snap := s.state
	snap.Identity = copyIdentity(s.state.Identity)
	return snap
}

func (s *SessionStore) publish(snap SessionState, watchers []stateWatcher) {
	if s.debug {
		s.logger.Debug("session state committed", "state", print.MaybePrettyJSON(snap))
	}
	for _, w := range watchers {
		w.fn(snap)
	}
}

// SignUp creates an account. Input is validated before the provider is
// contacted. The new account does not sign the user in by itself; identity
// only changes when the provider pushes a session event.
func (s *SessionStore) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	creds := Credentials{Email: email, Password: password}
	if err := creds.ValidateSignUp(); err != nil {
		verr := WrapError(ErrInvalidSignUp, err, map[string]any{
			"description": err.Error(),
			"fields":      FormatValidationErrorToMap(err),
		})
		s.notify(ctx, errorNotification(titleSignUpError, verr))
		s.record(ctx, ActivityEvent{EventType: ActivityEventSignUpFailure, Email: email, Metadata: map[string]any{"reason": "validation"}})
		return verr
	}

	res, err := s.backend.SignUp(ctx, email, password, SignUpOptions{
		VerificationRedirect: s.cfg.GetVerificationRedirectURL(),
	})
	if err != nil {
		perr := NewProviderError("sign_up", err)
		s.logger.Error("sign up failed", "email", email, "error", err)
		s.notify(ctx, errorNotification(titleSignUpError, perr))
		s.record(ctx, ActivityEvent{EventType: ActivityEventSignUpFailure, Email: email, Metadata: map[string]any{"reason": Describe(perr)}})
		return perr
	}

	event := ActivityEvent{EventType: ActivityEventSignUpSuccess, Email: email}
	if res != nil && res.ConfirmationRequired {
		s.notify(ctx, successNotification(titleSignUpSuccess, descCheckEmail))
		event.Metadata = map[string]any{"confirmation_required": true}
	} else {
		s.notify(ctx, successNotification(titleSignUpSuccess, descAccountCreated))
	}
	if res != nil {
		event.UserID = res.UserID
	}
	s.record(ctx, event)

	return nil
}

// SignIn authenticates with email and password. Accounts whose email cannot
// be confirmed as verified are rejected before the password endpoint is
// contacted.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		verr := WrapError(ErrInvalidEmail, err, map[string]any{"description": "Please enter a valid email address"})
		s.notify(ctx, errorNotification(titleSignInError, verr))
		return verr
	}

	if !s.IsEmailVerified(ctx, email) {
		uerr := WrapError(ErrUnverifiedEmail, nil, map[string]any{"email": email})
		s.notify(ctx, errorNotification(titleEmailUnverified, uerr))
		s.record(ctx, ActivityEvent{EventType: ActivityEventLoginUnverified, Email: email})
		return uerr
	}

	if err := s.backend.SignInWithPassword(ctx, email, password); err != nil {
		cerr := classifySignInError(err)
		s.logger.Error("sign in failed", "email", email, "error", err)
		s.notify(ctx, errorNotification(titleSignInError, cerr))
		s.record(ctx, ActivityEvent{EventType: ActivityEventLoginFailure, Email: email, Metadata: map[string]any{"reason": Describe(cerr)}})
		return cerr
	}

	s.notify(ctx, successNotification(titleSignInSuccess, descSignInSuccess))
	s.record(ctx, ActivityEvent{EventType: ActivityEventLoginSuccess, Email: email})
	return nil
}

func classifySignInError(err error) error {
	switch {
	case IsInvalidCredentials(err):
		return WrapError(ErrInvalidCredentials, err, map[string]any{"operation": "sign_in"})
	case IsUnverifiedEmail(err):
		return WrapError(ErrUnverifiedEmail, err, map[string]any{"operation": "sign_in"})
	default:
		return NewProviderError("sign_in", err)
	}
}

// SignOut ends the provider session. Identity clears through the provider's
// sign-out event. Concurrent calls share a single provider request that is
// not bound to any one caller's cancellation; each caller is notified of the
// shared outcome.
func (s *SessionStore) SignOut(ctx context.Context) error {
	_, err, _ := s.signOuts.Do("sign-out", func() (any, error) {
		shared := context.WithoutCancel(ctx)

		userID := ""
		if id := s.Identity(); id != nil {
			userID = id.ID
		}

		if err := s.backend.SignOut(shared); err != nil {
			s.logger.Error("sign out failed", "error", err)
			return nil, NewProviderError("sign_out", err)
		}

		s.record(shared, ActivityEvent{EventType: ActivityEventLogout, UserID: userID})
		return nil, nil
	})

	if err != nil {
		s.notify(ctx, errorNotification(titleSignOutError, err))
		return err
	}

	s.notify(ctx, successNotification(titleSignOutSuccess, descSignOutSuccess))
	return nil
}

// ResetPassword asks the provider to email a reset link that lands on the
// configured reset route.
func (s *SessionStore) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		verr := WrapError(ErrInvalidEmail, err, map[string]any{"description": "Please enter a valid email address"})
		s.notify(ctx, errorNotification(titleResetError, verr))
		return verr
	}

	err := s.backend.SendPasswordReset(ctx, email, PasswordResetOptions{
		RedirectTo: s.cfg.GetPasswordResetRedirectURL(),
	})
	if err != nil {
		perr := NewProviderError("reset_password", err)
		s.logger.Error("password reset request failed", "email", email, "error", err)
		s.notify(ctx, errorNotification(titleResetError, perr))
		return perr
	}

	s.notify(ctx, successNotification(titleResetSent, descResetSent))
	s.record(ctx, ActivityEvent{EventType: ActivityEventPasswordResetRequested, Email: email})
	return nil
}

// EmailVerification is the outcome of a confirmation status lookup.
type EmailVerification int

const (
	EmailCheckFailed EmailVerification = iota
	EmailNotFound
	EmailUnverified
	EmailVerified
)

func (v EmailVerification) String() string {
	switch v {
	case EmailVerified:
		return "verified"
	case EmailUnverified:
		return "unverified"
	case EmailNotFound:
		return "not_found"
	default:
		return "check_failed"
	}
}

// IsEmailVerified reports whether the account's email is confirmed. It never
// fails: an unknown account and a failed lookup both report false, which
// means "cannot confirm verified". Use CheckEmailVerification to tell the
// cases apart.
func (s *SessionStore) IsEmailVerified(ctx context.Context, email string) bool {
	status, err := s.CheckEmailVerification(ctx, email)
	if err != nil {
		s.logger.Warn("email verification lookup failed", "email", email, "status", status.String(), "error", err)
	}
	return status == EmailVerified
}

// CheckEmailVerification queries the backend and, when the backend denies
// the lookup by policy, the configured AdminDirectory.
func (s *SessionStore) CheckEmailVerification(ctx context.Context, email string) (EmailVerification, error) {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return EmailCheckFailed, WrapError(ErrInvalidEmail, err, nil)
	}

	verified, err := s.backend.EmailConfirmationStatus(ctx, email)
	if err != nil && IsAccessDenied(err) && s.directory != nil {
		s.logger.Debug("confirmation lookup denied, using directory", "email", email)
		verified, err = s.directory.LookupEmailConfirmation(ctx, email)
	}

	switch {
	case err == nil && verified:
		return EmailVerified, nil
	case err == nil:
		return EmailUnverified, nil
	case IsIdentityNotFound(err):
		return EmailNotFound, err
	default:
		return EmailCheckFailed, err
	}
}

func (s *SessionStore) notify(ctx context.Context, n Notification) {
	if scoped, ok := notifierFromContext(ctx); ok {
		scoped.Notify(ctx, n)
		return
	}
	s.notifier.Notify(ctx, n)
}

func (s *SessionStore) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Error("activity sink failed", "event", event.EventType, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
