package handlers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

func init() {
	// Unknown fields in a request body are a client bug, not something to
	// silently drop.
	binding.EnableDecoderDisallowUnknownFields = true

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("username", validUsername)
		_ = v.RegisterValidation("strongpassword", strongPassword)
	}
}

func validUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// strongPassword requires an upper, a lower, a digit and one symbol from the
// fixed punctuation set. Length bounds are separate tags.
func strongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
