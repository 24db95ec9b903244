package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	customerrors "github.com/axellelanca/locashare/internal/errors"
)

const internalDetail = "internal server error"

func statusFor(kind customerrors.Kind) int {
	switch kind {
	case customerrors.KindInvalidArgument:
		return http.StatusBadRequest
	case customerrors.KindNotFound:
		return http.StatusNotFound
	case customerrors.KindConflict:
		return http.StatusConflict
	case customerrors.KindResourceExhausted, customerrors.KindOverflow:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"detail": ...} for err. Causes of store and internal
// failures are logged, never returned.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(customerrors.KindOf(err))
	detail := internalDetail
	var de *customerrors.Error
	if status != http.StatusInternalServerError && errors.As(err, &de) {
		detail = de.Detail()
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// FieldError names one rejected request field by its JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var jsonNamesOnce sync.Once

// useJSONFieldNames makes validation errors carry JSON field names instead
// of Go struct field names.
func useJSONFieldNames() {
	jsonNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
}

func bindFieldErrors(err error) (string, []FieldError) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return "invalid request", fields
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return "invalid request", []FieldError{{Field: field, Message: "must be a " + typeErr.Type.Kind().String()}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "malformed JSON body", nil
	}
	return "invalid request", nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url", "http_url", "uri":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}

// respondBindError reports a malformed or incomplete request body without
// echoing decoder internals.
func respondBindError(c *gin.Context, err error) {
	detail, fields := bindFieldErrors(err)
	body := gin.H{"detail": detail}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, body)
}
