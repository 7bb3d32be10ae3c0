package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindTooManyRequests
	KindBadRequest
	KindForbidden
)

const (
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeTimedOut             = "TIMED_OUT"
	CodeTokenMismatch        = "TOKEN_MISMATCH"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeCaptchaRequired      = "CAPTCHA_REQUIRED"
	CodeCaptchaFailed        = "CAPTCHA_FAILED"
	CodeMockRoleForbidden    = "MOCK_ROLE_FORBIDDEN"
	CodeTooManyLoginAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	CodeIPTimedOut           = "IP_TIMED_OUT"
	CodeTwoFARequired        = "TWOFA_REQUIRED"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeEmailAlreadySent     = "EMAIL_ALREADY_SENT"
	CodeInstanceIsolated     = "INSTANCE_ISOLATED"
	CodeForbidden            = "FORBIDDEN"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeEmailDisabled        = "EMAIL_DISABLED"
	CodeUnknownRole          = "UNKNOWN_ROLE"
)

// AuthError is a denial that maps onto an HTTP status. Everything that is not an
// AuthError is an unexpected failure.
type AuthError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Data       map[string]any
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Status() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func Unauthorized(code, message string) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Code: code, Message: message}
}

func TooManyRequests(code, message string, retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindTooManyRequests, Code: code, Message: message, RetryAfter: retryAfter}
}

func BadRequest(code, message string) *AuthError {
	return &AuthError{Kind: KindBadRequest, Code: code, Message: message}
}

func Forbidden(code, message string) *AuthError {
	return &AuthError{Kind: KindForbidden, Code: code, Message: message}
}

func (e *AuthError) WithData(key string, value any) *AuthError {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
