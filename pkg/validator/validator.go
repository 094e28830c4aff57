package validator

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// SupportedLanguages lists the notification languages accepted by the "lang" rule.
var SupportedLanguages = []string{"en", "fr"}

var notificationTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError is one failed rule on one field. Field is the JSON name,
// with an index suffix for slice elements.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationErrors is returned by ValidateStruct when any rule fails.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + " failed on " + f.Tag)
		if f.Param != "" {
			b.WriteString("=" + f.Param)
		}
	}
	return b.String()
}

// ValidateStruct applies the validate tags on s. Rule failures come back as
// ValidationErrors; anything else (such as a non-struct argument) is returned
// unchanged.
func ValidateStruct(s any) error {
	err := instance().Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// IsSupportedLanguage reports whether code is one of SupportedLanguages.
func IsSupportedLanguage(code string) bool {
	return slices.Contains(SupportedLanguages, strings.ToLower(strings.TrimSpace(code)))
}

// IsNotificationType reports whether s is a lowercase snake_case type name
// of at most 64 characters.
func IsNotificationType(s string) bool {
	return notificationTypePattern.MatchString(s)
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("lang", func(fl validator.FieldLevel) bool {
			return IsSupportedLanguage(fl.Field().String())
		})
		_ = validate.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
			return IsNotificationType(fl.Field().String())
		})
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}
