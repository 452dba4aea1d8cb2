package auth

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeProviderError      = "PROVIDER_ERROR"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccessDenied       = "ACCESS_DENIED"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeInvalidSignUp      = "INVALID_SIGNUP"
	TextCodeInvalidEmail       = "INVALID_EMAIL"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeStoreStarted       = "STORE_ALREADY_STARTED"
	TextCodeStoreStopped       = "STORE_STOPPED"
)

// UnexpectedErrorDescription is shown when an error carries no readable message.
const UnexpectedErrorDescription = "An unexpected error occurred"

// ErrProvider is the base for any identity provider failure that is not
// classified more precisely.
var ErrProvider = errors.New("identity provider request failed", errors.CategoryOperation).
	WithTextCode(TextCodeProviderError).
	WithCode(http.StatusBadGateway)

// ErrUnverifiedEmail is returned by sign-in when the account has not
// confirmed its email address.
var ErrUnverifiedEmail = errors.New("Your email has not been verified. Please check your inbox for a verification link.", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrInvalidCredentials is returned when the provider rejects email/password.
var ErrInvalidCredentials = errors.New("Invalid login credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccessDenied is returned by policy-restricted lookups.
var ErrAccessDenied = errors.New("access denied by policy", errors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidSignUp is returned when sign-up input fails validation.
var ErrInvalidSignUp = errors.New("Invalid sign up details", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidSignUp).
	WithCode(errors.CodeBadRequest)

// ErrInvalidEmail is returned when an email address is malformed.
var ErrInvalidEmail = errors.New("Invalid email address", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(errors.CodeBadRequest)

// ErrEmailTaken is returned when an account with the email already exists.
var ErrEmailTaken = errors.New("User already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrTooManyAttempts is returned when login attempts exceed the cool down window.
var ErrTooManyAttempts = errors.New("Too many login attempts, try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

// ErrTokenExpired is returned for expired session tokens.
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for session tokens that fail validation.
var ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrStoreAlreadyStarted is returned by a second call to SessionStore.Start.
var ErrStoreAlreadyStarted = errors.New("session store already started", errors.CategoryOperation).
	WithTextCode(TextCodeStoreStarted).
	WithCode(errors.CodeConflict)

// ErrStoreStopped is returned when starting a store that was stopped.
var ErrStoreStopped = errors.New("session store stopped", errors.CategoryOperation).
	WithTextCode(TextCodeStoreStopped).
	WithCode(errors.CodeConflict)

// WrapError clones base, records err as its source and merges meta. A
// human-readable "description" entry in meta is what Describe shows users.
func WrapError(base *errors.Error, err error, meta map[string]any) error {
	if base == nil {
		return err
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}

	if meta == nil {
		meta = map[string]any{}
	}

	if err != nil {
		clone.Source = err
		if _, ok := meta["cause"]; !ok {
			meta["cause"] = err.Error()
		}
	}

	if len(meta) > 0 {
		merged := make(map[string]any, len(clone.Metadata)+len(meta))
		for k, v := range clone.Metadata {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		clone.Metadata = merged
	}

	return clone
}

// NewProviderError wraps a raw provider failure for the given operation.
func NewProviderError(operation string, err error) error {
	meta := map[string]any{"operation": operation}
	if err != nil {
		meta["description"] = err.Error()
		var richErr *errors.Error
		if stderrors.As(err, &richErr) && richErr != nil {
			meta["description"] = Describe(richErr)
		}
	}
	return WrapError(ErrProvider, err, meta)
}

// IsProviderError reports whether err is an unclassified provider failure.
func IsProviderError(err error) bool {
	return hasTextCode(err, TextCodeProviderError)
}

// IsUnverifiedEmail reports whether err was caused by an unconfirmed email.
func IsUnverifiedEmail(err error) bool {
	return hasTextCode(err, TextCodeEmailNotVerified)
}

// IsInvalidCredentials reports whether the provider rejected the credentials.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsAccessDenied reports whether a lookup was refused by access policy.
func IsAccessDenied(err error) bool {
	return hasTextCode(err, TextCodeAccessDenied)
}

// IsIdentityNotFound reports whether the account does not exist.
func IsIdentityNotFound(err error) bool {
	return hasTextCode(err, TextCodeIdentityNotFound)
}

// IsEmailTaken reports whether sign-up failed on an existing account.
func IsEmailTaken(err error) bool {
	return hasTextCode(err, TextCodeEmailTaken)
}

// IsTooManyAttempts reports whether the account is cooling down.
func IsTooManyAttempts(err error) bool {
	return hasTextCode(err, TextCodeTooManyAttempts)
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	return hasTextCode(err, TextCodeInvalidSignUp) || hasTextCode(err, TextCodeInvalidEmail)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsTokenMalformedError reports whether a token failed validation for any
// reason other than expiry.
func IsTokenMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// Describe returns the text a user should see for err.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var richErr *errors.Error
	if stderrors.As(err, &richErr) && richErr != nil {
		if desc, ok := richErr.Metadata["description"].(string); ok && strings.TrimSpace(desc) != "" {
			return desc
		}
		if strings.TrimSpace(richErr.Message) != "" {
			return richErr.Message
		}
	}

	return UnexpectedErrorDescription
}

func hasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *errors.Error
		if !stderrors.As(err, &richErr) || richErr == nil {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = richErr.Source
	}
	return false
}
