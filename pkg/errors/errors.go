package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched with errors.Is. Repositories and services wrap these so
// the transport layer can classify failures without knowing their origin.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is an error that already knows its wire code and HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// kind ties a sentinel to its code, status and public message. An empty
// message means the wrapped error's text is safe to show.
type kind struct {
	sentinel error
	code     string
	status   int
	message  string
}

var (
	notFound      = kind{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"}
	alreadyExists = kind{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists"}
	conflict      = kind{ErrConflict, "CONFLICT", http.StatusConflict, ""}
	invalidInput  = kind{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""}
	unavailable   = kind{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable"}

	kinds = []kind{notFound, alreadyExists, conflict, invalidInput, unavailable}
)

func (k kind) with(message string) *AppError {
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: k.sentinel}
}

// NotFound reports a missing resource as 404.
func NotFound(resource, id string) *AppError {
	return notFound.with(fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists reports a unique-key clash as 409.
func AlreadyExists(resource, field, value string) *AppError {
	return alreadyExists.with(fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

func InvalidInput(message string) *AppError {
	return invalidInput.with(message)
}

// Conflict is a 409 with a caller-chosen code. A nil cause falls back to
// ErrConflict so errors.Is keeps matching something.
func Conflict(code, message string, cause error) *AppError {
	e := conflict.with(message)
	e.Code = code
	if cause != nil {
		e.Err = cause
	}
	return e
}

func ServiceUnavailable(message string) *AppError {
	return unavailable.with(message)
}

// Classify returns the AppError for err. An AppError anywhere in the chain
// wins; otherwise the first matching sentinel decides, and anything else is
// an opaque 500 whose text is never exposed.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if !errors.Is(err, k.sentinel) {
			continue
		}
		msg := k.message
		if msg == "" {
			msg = err.Error()
		}
		return &AppError{Code: k.code, Message: msg, Status: k.status, Err: err}
	}
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus is shorthand for Classify(err).Status.
func HTTPStatus(err error) int {
	return Classify(err).Status
}
