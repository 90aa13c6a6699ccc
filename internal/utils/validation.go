package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var referralCodeRegex = regexp.MustCompile(`^[A-Z0-9]+$`)

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("otp", validateOTP)
	validate.RegisterValidation("referral_code", validateReferralCode)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidationErrorDetails flattens validator errors into field -> rule pairs
// for the error envelope.
func ValidationErrorDetails(err error) map[string]string {
	details := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["request"] = err.Error()
		return details
	}

	for _, fe := range verrs {
		details[toSnakeCase(fe.Field())] = fe.Tag()
	}
	return details
}

func validateOTP(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) != OTPLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Referral codes are not checked against the store here; an unknown code is a
// weak reference, not an input error.
func validateReferralCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if code == "" {
		return true
	}
	return len(code) <= 64 && referralCodeRegex.MatchString(code)
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
