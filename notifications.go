package auth

import "context"

// NotificationVariant styles a notification.
type NotificationVariant string

const (
	VariantDefault     NotificationVariant = "default"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is a user-facing toast or banner.
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
}

// Notifier displays notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	if f == nil {
		return
	}
	f(ctx, n)
}

type logNotifier struct {
	logger Logger
}

func (l logNotifier) Notify(_ context.Context, n Notification) {
	l.logger.Info("notification", "title", n.Title, "description", n.Description, "variant", n.Variant)
}

type notifierCtxKey struct{}

// WithNotifier scopes a notifier to ctx. Session store operations called with
// the returned context notify it instead of the store's notifier.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierCtxKey{}, n)
}

func notifierFromContext(ctx context.Context) (Notifier, bool) {
	if ctx == nil {
		return nil, false
	}
	n, ok := ctx.Value(notifierCtxKey{}).(Notifier)
	return n, ok && n != nil
}

// NotificationCollector records notifications, mostly for request scoped use.
type NotificationCollector struct {
	items []Notification
}

// Notify implements Notifier.
func (c *NotificationCollector) Notify(_ context.Context, n Notification) {
	c.items = append(c.items, n)
}

// Notifications returns the recorded notifications.
func (c *NotificationCollector) Notifications() []Notification {
	return c.items
}

// Last returns the most recent notification.
func (c *NotificationCollector) Last() (Notification, bool) {
	if len(c.items) == 0 {
		return Notification{}, false
	}
	return c.items[len(c.items)-1], true
}

const (
	titleSignUpSuccess   = "Success!"
	titleSignUpError     = "Error signing up"
	titleSignInSuccess   = "Welcome back!"
	titleSignInError     = "Error logging in"
	titleSignOutSuccess  = "Logged out"
	titleSignOutError    = "Error logging out"
	titleResetSent       = "Password reset email sent"
	titleResetError      = "Error resetting password"
	descCheckEmail       = "Please check your email for verification link."
	descAccountCreated   = "Your account has been created."
	descSignInSuccess    = "You've successfully logged in."
	descSignOutSuccess   = "You've been successfully logged out."
	descResetSent        = "Please check your email for the password reset link."
	titleEmailUnverified = "Email not verified"
)

func successNotification(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

func errorNotification(title string, err error) Notification {
	return Notification{Title: title, Description: Describe(err), Variant: VariantDestructive}
}
