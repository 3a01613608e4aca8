package application

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	inputValidator  = newInputValidator()
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("field"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("isbn_digits", func(fl validator.FieldLevel) bool {
		return validISBN(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct runs the struct tags of input and collects every failure keyed
// by the field tag name.
func validateStruct(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator.Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fe.Field(), fieldMessage(fe))
	}
	return vErr
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " is invalid"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", label, fe.Param())
	case "username":
		return label + " may contain only letters, digits, dots, dashes and underscores"
	case "isbn_digits":
		return label + " must contain 10 or 13 digits"
	}
	return label + " is invalid"
}

// normalizeISBN strips separators and upper-cases the ISBN-10 check character.
func normalizeISBN(value string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validISBN accepts a normalized ISBN with 13 digits, or 10 characters where only
// the last may be X.
func validISBN(isbn string) bool {
	switch len(isbn) {
	case 13:
		return allDigits(isbn)
	case 10:
		last := isbn[9]
		return allDigits(isbn[:9]) && (last == 'X' || (last >= '0' && last <= '9'))
	}
	return false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
