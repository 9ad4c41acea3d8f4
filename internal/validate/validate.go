// Package validate runs the client-side input checks that save a round trip.
// The server stays authoritative; these only reject input it would reject.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/scoutcard/internal/apperr"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return !looksVeryWeak(fl.Field().String())
	})
	return val
}

// Struct checks the validate tags on s.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

// Email checks the basic syntax of an address.
func Email(email string) error {
	if err := v.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return apperr.Validation("%q is not a valid email address", email)
	}
	return nil
}

// Password checks length and rejects trivially guessable passwords.
func Password(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}
	if n > 128 {
		return apperr.Validation("password must be at most 128 characters")
	}
	if looksVeryWeak(pw) {
		return apperr.Validation("password is too easy to guess")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " is not a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return field + " does not match"
	case "password":
		return field + " is too easy to guess"
	default:
		return field + " is invalid"
	}
}

func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	allSame := true
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password123", "12345678", "123456789", "qwerty123", "11111111":
		return true
	}
	return false
}
