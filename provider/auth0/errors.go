package auth0

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/keysai/go-auth"
)

type statusError interface {
	Status() int
}

// mapSignUpError turns Auth0 signup failures into auth errors. Unknown
// failures are left for the store to wrap as provider errors.
func mapSignUpError(err error, email string) error {
	msg := strings.ToLower(err.Error())
	meta := map[string]any{"email": email, "provider": "auth0"}

	switch {
	case strings.Contains(msg, "user_exists"),
		strings.Contains(msg, "user already exists"),
		strings.Contains(msg, "invalid_signup"):
		return auth.WrapError(auth.ErrEmailTaken, err, meta)
	case strings.Contains(msg, "invalid_password"),
		strings.Contains(msg, "password_strength"),
		strings.Contains(msg, "password is too weak"):
		return auth.WrapError(auth.ErrInvalidSignUp, err, meta)
	case status(err) == http.StatusTooManyRequests:
		return auth.WrapError(auth.ErrTooManyAttempts, err, meta)
	}
	return err
}

// mapLoginError classifies password grant failures.
func mapLoginError(err error, email string) error {
	msg := strings.ToLower(err.Error())
	meta := map[string]any{"email": email, "provider": "auth0"}

	switch {
	case strings.Contains(msg, "verify your email"),
		strings.Contains(msg, "email_not_verified"):
		return auth.WrapError(auth.ErrUnverifiedEmail, err, meta)
	case strings.Contains(msg, "too_many_attempts"),
		strings.Contains(msg, "too many"),
		status(err) == http.StatusTooManyRequests:
		return auth.WrapError(auth.ErrTooManyAttempts, err, meta)
	case strings.Contains(msg, "invalid_grant"),
		strings.Contains(msg, "wrong email or password"):
		return auth.WrapError(auth.ErrInvalidCredentials, err, meta)
	}
	return err
}

func status(err error) int {
	var se statusError
	if stderrors.As(err, &se) {
		return se.Status()
	}
	return 0
}
