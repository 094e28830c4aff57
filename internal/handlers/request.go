package handlers

import (
	stdErrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/response"
	appValidator "github.com/charlesng35/careerhub/pkg/validator"
)

// normalizer is implemented by payloads that clean their fields before
// validation.
type normalizer interface {
	Normalize()
}

// bindAndValidate decodes the JSON body into dest and applies its validate
// tags. On failure it writes a 400 and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		msg := "invalid JSON payload"
		if stdErrors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		response.Error(c, appErrors.NewBadRequest(msg))
		return false
	}

	if n, ok := any(dest).(normalizer); ok {
		n.Normalize()
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(describeValidation(err)).WithInternal(err))
		return false
	}
	return true
}

// describeValidation renders validator failures as one client-facing sentence
// per field, keyed by the JSON field name.
func describeValidation(err error) string {
	var failures appValidator.ValidationErrors
	if !stdErrors.As(err, &failures) || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		field := f.Field
		if field == "" {
			field = "field"
		}
		switch f.Tag {
		case "required":
			messages = append(messages, field+" is required")
		case "lang":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, strings.Join(appValidator.SupportedLanguages, ", ")))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must have at most %s entries", field, f.Param))
		case "notification_type":
			messages = append(messages, field+" must be a lowercase notification type")
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid (%s)", field, f.Tag))
		}
	}
	return strings.Join(messages, "; ")
}

// parseIntQuery reads a positive integer query parameter, falling back on
// absent or malformed values.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
