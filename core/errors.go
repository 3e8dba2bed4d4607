package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("identity not found")
	ErrDuplicate = errors.New("identity already exists")
)

// ErrorKind classifies an AuthError for callers.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindNotFound
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Diagnostic codes. They are for logs and metrics only and never reach a client.
const (
	CodeMissingToken      = "missing_token"
	CodeMalformedHeader   = "malformed_header"
	CodeTokenExpired      = "token_expired"
	CodeTokenInvalid      = "token_invalid"
	CodeStaleIdentity     = "stale_identity"
	CodeBadSignature      = "bad_signature"
	CodeBadCredentials    = "bad_credentials"
	CodeInsufficientRole  = "insufficient_role"
	CodeMissingPermission = "missing_permission"
	CodeWebhookSignature  = "webhook_signature"
	CodeLookupFailed      = "identity_lookup_failed"
)

// AuthError is the typed error surfaced by the auth core.
type AuthError struct {
	Kind   ErrorKind
	Code   string // internal diagnostic
	Detail string // safe, client-visible detail; only rendered for BadRequest and NotFound
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case KindUnauthenticated:
		return "invalid or missing token"
	case KindUnauthorized:
		return "authentication failed"
	case KindForbidden:
		return "access denied"
	case KindBadRequest, KindNotFound:
		if e.Detail != "" {
			return e.Detail
		}
		if e.Kind == KindNotFound {
			return "not found"
		}
		return "bad request"
	case KindUpstream:
		return "upstream service failure"
	default:
		return "internal error"
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrForbidden) works.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == "" && t.Detail == "" && t.Err == nil
}

// Kind markers for errors.Is.
var (
	ErrUnauthenticated = &AuthError{Kind: KindUnauthenticated}
	ErrUnauthorized    = &AuthError{Kind: KindUnauthorized}
	ErrForbidden       = &AuthError{Kind: KindForbidden}
	ErrBadRequest      = &AuthError{Kind: KindBadRequest}
	ErrNotFoundKind    = &AuthError{Kind: KindNotFound}
	ErrUpstream        = &AuthError{Kind: KindUpstream}
)

func Unauthenticated(code string, err error) *AuthError {
	return &AuthError{Kind: KindUnauthenticated, Code: code, Err: err}
}

func Unauthorized(code string, err error) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Code: code, Err: err}
}

func Forbidden(code string) *AuthError {
	return &AuthError{Kind: KindForbidden, Code: code}
}

func BadRequest(format string, args ...any) *AuthError {
	return &AuthError{Kind: KindBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(detail string) *AuthError {
	return &AuthError{Kind: KindNotFound, Detail: detail, Err: ErrNotFound}
}

func Upstream(err error) *AuthError {
	return &AuthError{Kind: KindUpstream, Err: err}
}

// KindOf returns the kind of err, KindInternal for anything that is not an AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the diagnostic code of err, if any.
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
