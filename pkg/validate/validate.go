// Package validate applies struct defaults and validation tags to tool
// arguments and reports the first violation as an apperr VALIDATION error.
package validate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/util"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("expiration", func(fl validator.FieldLevel) bool {
		_, err := util.ParseExpiration(int(fl.Field().Int()))
		return err == nil
	})
}

// NormalizeTicker trims and upper-cases a symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Ticker checks a normalized symbol.
func Ticker(s string) error {
	if s == "" {
		return apperr.ValidationError("ticker", "ticker is required")
	}
	if !tickerPattern.MatchString(s) {
		return apperr.ValidationError("ticker", fmt.Sprintf("ticker %q must be 1-10 characters: a letter followed by letters, digits, '.' or '-'", s))
	}
	return nil
}

// Struct sets defaults on v and validates it. prefix is prepended to the
// reported field path, e.g. "configurations[1]".
func Struct(ctx context.Context, v interface{}, prefix string) error {
	if err := defaults.Set(v); err != nil {
		return apperr.New(apperr.Validation, err.Error()).WithError(err)
	}
	if err := validate.StructCtx(ctx, v); err != nil {
		return toAppError(err, prefix)
	}
	return nil
}

func toAppError(err error, prefix string) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		field := fieldPath(fe, prefix)
		return apperr.ValidationError(field, getErrorMessage(fe, field))
	}
	return apperr.New(apperr.Validation, err.Error()).WithError(err)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError, prefix string) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if prefix == "" {
		return ns
	}
	return prefix + "." + ns
}

func getErrorMessage(fe validator.FieldError, field string) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ticker":
		return fmt.Sprintf("%s %q is not a valid ticker symbol", field, fe.Value())
	case "expiration":
		return fmt.Sprintf("%s %v is not a valid YYYYMMDD date", field, fe.Value())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
