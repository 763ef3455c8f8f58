package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

const (
	CodeUnhandledServerError = "UNHANDLED_SERVER_ERROR"
	CodeNotImplemented       = "NOT_IMPLEMENTED"
	CodeValidationError      = "INVALID_PARAMETER"
	CodeAuthRequired         = "AUTHORIZATION_HEADER_MISSING"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeNotFound             = "NOT_FOUND"
)

// Error is the json body of every error reply.
type Error struct {
	Status      int    `json:"status"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
	ErrorID     string `json:"error_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Formatter turns an error raised while serving a call into an error body.
type Formatter func(err error) *Error

// builder pattern
type ErrorBuilder struct {
	err Error
}

func NewError(status int, code, message string) *ErrorBuilder {
	return &ErrorBuilder{err: Error{Status: status, Code: code, Description: message}}
}

func (b *ErrorBuilder) WithUserMessage(msg string) *ErrorBuilder {
	b.err.UserMessage = msg
	return b
}

func (b *ErrorBuilder) WithID(id string) *ErrorBuilder {
	b.err.ErrorID = id
	return b
}

func (b *ErrorBuilder) Create() *Error {
	e := b.err
	return &e
}

func UnhandledServerError(msg string) *ErrorBuilder {
	return NewError(http.StatusInternalServerError, CodeUnhandledServerError, msg)
}

func NotImplemented(operation string) *ErrorBuilder {
	return NewError(http.StatusNotImplemented, CodeNotImplemented, "operation "+operation+" has no implementation")
}

func ValidationErr(msg string) *ErrorBuilder {
	return NewError(http.StatusBadRequest, CodeValidationError, msg)
}

func Unauthorized(code, msg string) *ErrorBuilder {
	return NewError(http.StatusUnauthorized, code, msg)
}

func NotFound(resource string) *ErrorBuilder {
	return NewError(http.StatusNotFound, CodeNotFound, resource+" not found")
}

// FormatError is the default Formatter. Errors that already are *Error are
// kept, anything else becomes an unhandled server error.
func FormatError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return UnhandledServerError(msg).Create()
}

// WriteError writes e as json with e.Status as http status.
func WriteError(w http.ResponseWriter, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
		e.Status = status
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
