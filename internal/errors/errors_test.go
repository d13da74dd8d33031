package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewNetworkError("yahoo", "AAPL", context.DeadlineExceeded), true},
		{"upstream", NewUpstreamError("yahoo", "AAPL", "Not Found", "No data found"), true},
		{"parse", NewParseError("sina", "000001.SZ", "too few fields", nil), true},
		{"wrapped parse", fmt.Errorf("fetch: %w", NewParseError("tencent", "600519.SS", "bad price", nil)), true},
		{"rate limited", ErrRateLimited, false},
		{"persistence", NewPersistenceError("save_price", errors.New("disk full")), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUnwrapChains(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(NewNetworkError("sina", "000001.SZ", cause), "fetch")
	if !Is(err, cause) {
		t.Error("expected wrapped network error to unwrap to its cause")
	}

	var netErr *NetworkError
	if !As(err, &netErr) || netErr.Source != "sina" {
		t.Errorf("expected NetworkError from sina, got %v", netErr)
	}

	if !Is(NewValidationError("price", -1, "must be positive"), ErrInputValidation) {
		t.Error("validation errors should match ErrInputValidation")
	}

	if Wrap(nil, "noop") != nil || Wrapf(nil, "noop %d", 1) != nil {
		t.Error("wrapping nil should be nil")
	}

	wrapped := Wrapf(ErrNotFound, "opening database %s", "/tmp/x.db")
	if !Is(wrapped, ErrNotFound) || wrapped.Error() != "opening database /tmp/x.db: not found" {
		t.Errorf("Wrapf = %q", wrapped)
	}
}
