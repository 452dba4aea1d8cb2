package auth

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

var (
	lowerRe = regexp.MustCompile(`[a-z]`)
	upperRe = regexp.MustCompile(`[A-Z]`)
	digitRe = regexp.MustCompile(`[0-9]`)
)

// PasswordRules is the sign-up password policy.
var PasswordRules = []validation.Rule{
	validation.Required,
	validation.Length(MinPasswordLength, 0).Error("Password must be at least 8 characters"),
	validation.Match(lowerRe).Error("Password must contain at least one lowercase letter"),
	validation.Match(upperRe).Error("Password must contain at least one uppercase letter"),
	validation.Match(digitRe).Error("Password must contain at least one number"),
}

// EmailRules validates an email address.
var EmailRules = []validation.Rule{
	validation.Required,
	is.Email,
}

// Credentials is an email/password pair.
type Credentials struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// ValidateSignUp checks the address and the password policy.
func (c Credentials) ValidateSignUp() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, EmailRules...),
		validation.Field(&c.Password, PasswordRules...),
	)
}

// ValidatePassword checks password against PasswordRules.
func ValidatePassword(password string) error {
	return validation.Validate(password, PasswordRules...)
}

// ValidateEmail checks email syntax only.
func ValidateEmail(email string) error {
	return validation.Validate(strings.TrimSpace(email), EmailRules...)
}

// FormatValidationErrorToMap flattens ozzo field errors for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if errs, ok := err.(validation.Errors); ok {
		for field, fieldErr := range errs {
			if fieldErr != nil {
				out[field] = fieldErr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
