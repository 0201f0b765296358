package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, ErrCodeInternal, "store result")

	assert.Equal(t, "store result: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFoundf("job %s not found", "abc"), check: IsNotFound},
		{name: "unknown voice", err: UnknownVoice("alice"), check: IsUnknownVoice},
		{name: "expired", err: Expiredf("result %s expired", "abc"), check: IsExpired},
		{name: "conflict", err: Conflictf("job is %s", "running"), check: IsConflict},
		{name: "validation", err: ValidationField("speed", "out of range"), check: IsValidation},
		{
			name:  "synthesis failed",
			err:   Wrap(errors.New("oom"), ErrCodeSynthesisFailed, "synthesis failed"),
			check: IsSynthesisFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)), "predicate should see through wrapping")
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("submit: %w", UnknownVoice("bob"))

	assert.Equal(t, ErrCodeUnknownVoice, GetCode(err))
	assert.Equal(t, "voice_id", GetField(err))
	assert.Empty(t, GetCode(errors.New("plain")))

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "bob")
}
