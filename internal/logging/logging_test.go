package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext(t *testing.T) {
	var attached, fallback bytes.Buffer
	base := zerolog.New(&fallback)

	fallbackLogger := FromContext(context.Background(), base)
	fallbackLogger.Info().Msg("no logger")
	if !strings.Contains(fallback.String(), "no logger") {
		t.Errorf("fallback logger not used: %q", fallback.String())
	}

	ctx := WithLogger(context.Background(), WithSymbol(zerolog.New(&attached), "AAPL"))
	ctxLogger := FromContext(ctx, base)
	ctxLogger.Info().Msg("saved")
	if !strings.Contains(attached.String(), `"symbol":"AAPL"`) {
		t.Errorf("context logger not used: %q", attached.String())
	}
	if strings.Contains(fallback.String(), "saved") {
		t.Error("fallback logger used although one was attached")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
