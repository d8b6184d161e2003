package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessageAndCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(cause, ErrCodeConflict, "distribution 12 already has a fallback")

	assert.Equal(t, "distribution 12 already has a fallback: duplicate key", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "no panelist is reachable by sms", Validation("no panelist is reachable by sms").Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeConflict, "unused"))
}

func TestConstructorsSetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"conflictf", Conflictf("distribution %s is already sent", "ab12cd34"), ErrCodeConflict},
		{"validation", Validation("request is required"), ErrCodeValidation},
		{"validationf", Validationf("links of %s are not generated yet", "ab12cd34"), ErrCodeValidation},
		{"validation field", ValidationField("expiration_date", "must be in the future"), ErrCodeValidation},
		{"wrap", Wrap(errors.New("boom"), ErrCodeInternal, "store"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("prepare send: %w", Conflictf("distribution %d is already sent", 3))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))

	field := fmt.Errorf("update: %w", ValidationField("description", "description is required"))
	assert.True(t, IsValidation(field))
	assert.Equal(t, "description", GetField(field))

	assert.True(t, IsNotFound(&AppError{Code: ErrCodeNotFound, Message: "Resource not found"}))
	assert.True(t, IsForeignKey(&AppError{Code: ErrCodeForeignKey, Message: "Panel does not exist"}))
}

func TestNonAppError(t *testing.T) {
	plain := errors.New("plain")
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetField(plain))
	assert.False(t, IsConflict(plain))
	assert.False(t, IsNotFound(nil))
}
