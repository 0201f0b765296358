package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error code", err: fmt.Errorf("wrap: %w", apperrors.UnknownVoice("bob")), want: "unknown_voice"},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "concrete type", err: fmt.Errorf("open: %w", &fs.PathError{Op: "open", Err: errors.New("x")}), want: "errors_errorstring"},
		{name: "path error", err: &fs.PathError{Op: "open"}, want: "fs_patherror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
