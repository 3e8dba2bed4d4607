package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthError_ExpiredAndTamperedLookTheSame(t *testing.T) {
	expired := Unauthenticated(CodeTokenExpired, errors.New("token is expired"))
	tampered := Unauthenticated(CodeTokenInvalid, errors.New("signature is invalid"))

	assert.Equal(t, expired.Error(), tampered.Error())
	assert.NotEqual(t, CodeOf(expired), CodeOf(tampered))
}

func TestAuthError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Forbidden(CodeInsufficientRole))

	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, CodeInsufficientRole, CodeOf(err))
}

func TestAuthError_Unwrap(t *testing.T) {
	err := NotFound("identity not found")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, ErrNotFoundKind))
	assert.Equal(t, "identity not found", err.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(errors.New("boom")))
}

func TestBadRequest_Detail(t *testing.T) {
	err := BadRequest("email %s already in use", "a@x.com")
	assert.Equal(t, "email a@x.com already in use", err.Error())
	assert.Equal(t, KindBadRequest, err.Kind)
}
