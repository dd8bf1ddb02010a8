package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
)

// RequestValidator decodes and validates JSON request bodies using struct tags
type RequestValidator struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
	maxBodySize  int64
}

// NewRequestValidator creates a request validator
func NewRequestValidator(logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *RequestValidator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &RequestValidator{
		validator:    v,
		logger:       logger.With(slog.String("component", "request_validator")),
		errorHandler: errorHandler,
		maxBodySize:  1 << 20,
	}
}

// DecodeJSON reads r's body into dst and validates it. On failure the
// problem response is already written and false is returned.
func (m *RequestValidator) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, m.maxBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			m.errorHandler.HandleError(w, r, apperrors.NewWithDetails(
				http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size",
				map[string]interface{}{"max_size": m.maxBodySize},
			))
		case errors.Is(err, io.EOF):
			m.errorHandler.HandleError(w, r, apperrors.New(http.StatusBadRequest, "EMPTY_BODY", "Request body is required"))
		default:
			m.logger.WarnContext(r.Context(), "invalid request body", slog.String("error", err.Error()))
			m.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		}
		return false
	}
	if dec.More() {
		m.errorHandler.HandleError(w, r, apperrors.New(http.StatusBadRequest, "INVALID_JSON", "Request body must hold a single JSON object"))
		return false
	}

	if err := m.ValidateStruct(dst); err != nil {
		m.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// ValidateStruct validates a struct and returns validation errors
func (m *RequestValidator) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]apperrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apperrors.ErrValidation(fields...)
}

// ContentTypeValidator ensures requests with a body have an allowed content type
func ContentTypeValidator(errs *apperrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				errs.HandleError(w, r, apperrors.New(
					http.StatusBadRequest,
					"MISSING_CONTENT_TYPE",
					"Content-Type header is required",
				))
				return
			}

			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			errs.HandleError(w, r, apperrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type",
				map[string]interface{}{
					"content_type": contentType,
					"allowed":      contentTypes,
				},
			))
		})
	}
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// QueryParamValidator validates query parameters
type QueryParamValidator struct {
	errorHandler *apperrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(errorHandler *apperrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateInt validates an integer query parameter
func (v *QueryParamValidator) ValidateInt(w http.ResponseWriter, r *http.Request, param string, min, max int, defaultValue int) (int, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		v.errorHandler.HandleError(w, r, apperrors.ErrValidation(apperrors.ValidationError{
			Field: param, Message: fmt.Sprintf("%s must be a valid integer", param),
		}))
		return 0, false
	}
	if intValue < min || intValue > max {
		v.errorHandler.HandleError(w, r, apperrors.ErrValidation(apperrors.ValidationError{
			Field: param, Message: fmt.Sprintf("%s must be between %d and %d", param, min, max),
		}))
		return 0, false
	}
	return intValue, true
}

// ValidateEnum validates an enum query parameter
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}

	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return a, true
		}
	}

	v.errorHandler.HandleError(w, r, apperrors.ErrValidation(apperrors.ValidationError{
		Field: param, Message: fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", ")),
	}))
	return "", false
}
