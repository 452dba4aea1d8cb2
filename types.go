package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity is the signed-in account as seen by the application. It is a
// read-through cache of provider state, never a source of truth.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session is the provider's view of an authenticated session.
type Session struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email,omitempty"`
	AccessToken string     `json:"-"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Identity projects the session onto the fields the application keeps.
func (s *Session) Identity() *Identity {
	if s == nil {
		return nil
	}
	return &Identity{ID: s.UserID, Email: s.Email}
}

// Expired reports whether the session carries an expiry in the past.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// SessionEventType describes why a provider pushed a session event.
type SessionEventType string

const (
	EventSignedIn         SessionEventType = "SIGNED_IN"
	EventSignedOut        SessionEventType = "SIGNED_OUT"
	EventTokenRefreshed   SessionEventType = "TOKEN_REFRESHED"
	EventUserUpdated      SessionEventType = "USER_UPDATED"
	EventPasswordRecovery SessionEventType = "PASSWORD_RECOVERY"
)

// SessionEvent is pushed by a Backend whenever its session changes. A nil
// Session means nobody is signed in.
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
}

// SessionListener receives provider session events.
type SessionListener func(SessionEvent)

// Subscription is a handle to a registered listener.
type Subscription interface {
	Unsubscribe()
}

// SignUpOptions are forwarded to the provider on account creation.
type SignUpOptions struct {
	// VerificationRedirect is where the confirmation link sends the user.
	VerificationRedirect string
}

// SignUpResult reports what the provider did with a new account.
type SignUpResult struct {
	UserID               string
	ConfirmationRequired bool
}

// PasswordResetOptions are forwarded to the provider on reset requests.
type PasswordResetOptions struct {
	RedirectTo string
}

// Backend is the identity provider capability the session store consumes.
type Backend interface {
	CurrentSession(ctx context.Context) (*Session, error)
	OnSessionChange(listener SessionListener) Subscription
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string, opts PasswordResetOptions) error
	// EmailConfirmationStatus is the primary, policy-restricted lookup. It
	// returns an error matching IsAccessDenied when the caller may not read
	// the account.
	EmailConfirmationStatus(ctx context.Context, email string) (bool, error)
}

// AdminDirectory is the privileged account lookup used when the primary
// confirmation lookup is denied by access policy.
type AdminDirectory interface {
	LookupEmailConfirmation(ctx context.Context, email string) (bool, error)
}

// AdminDirectoryFunc adapts a function to AdminDirectory.
type AdminDirectoryFunc func(ctx context.Context, email string) (bool, error)

// LookupEmailConfirmation implements AdminDirectory.
func (f AdminDirectoryFunc) LookupEmailConfirmation(ctx context.Context, email string) (bool, error) {
	return f(ctx, email)
}

// TokenStore persists the current session token between runs.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args...))
}

func line(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, "%v", args[i])
	}
	b.WriteByte('\n')
	return b.String()
}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}
