// Package view shapes every JSON body the API returns as {data, error, message}.
package view

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response[T any] struct {
	Data    T      `json:"data"`
	Error   *Error `json:"error"`
	Message string `json:"message"`
}

type Error struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ErrorResponse documents failed responses in swagger.
type ErrorResponse struct {
	Data    any    `json:"data"`
	Error   *Error `json:"error"`
	Message string `json:"message"`
}

// MessageResponse documents responses that only carry a message.
type MessageResponse struct {
	Data    string `json:"data"`
	Message string `json:"message"`
}

// CreateResponse builds the envelope. When err holds validation errors each
// failing field is listed. payload is the request that failed, if any; it is
// never echoed back since it may carry user identifiers.
func CreateResponse[T any](data T, err error, payload any, message string) Response[T] {
	resp := Response[T]{
		Data:    data,
		Message: message,
	}
	if err == nil {
		return resp
	}

	resp.Error = &Error{Message: err.Error()}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		resp.Error.Message = "validation failed"
		for _, fe := range validationErrs {
			resp.Error.Fields = append(resp.Error.Fields, FieldError{
				Field: toSnakeCase(fe.Field()),
				Rule:  fe.Tag(),
			})
		}
	}
	return resp
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
