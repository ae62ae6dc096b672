package dbretry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/d3vfreak/fleet-overview/internal/database/dbretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSyntax = errors.New("syntax error at or near \"FROM\"")

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: false},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connection refused"), want: true},
		{name: "broken pipe", err: errors.New("write: broken pipe"), want: true},
		{name: "syntax", err: errSyntax, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestOperation(t *testing.T) {
	t.Parallel()

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			calls++
			return 0, errSyntax
		})

		require.ErrorIs(t, err, errSyntax)
		assert.Equal(t, 1, calls)
	})

	t.Run("retryable error recovers", func(t *testing.T) {
		t.Parallel()

		calls := 0
		value, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("read: connection reset by peer")
			}
			return 5, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 5, value)
		assert.Equal(t, 2, calls)
	})

	t.Run("no result", func(t *testing.T) {
		t.Parallel()

		err := dbretry.NoResult(t.Context(), func(context.Context) error {
			return errSyntax
		})
		require.ErrorIs(t, err, errSyntax)
	})
}
