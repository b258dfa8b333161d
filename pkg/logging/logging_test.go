package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, env := range []string{"dev", "prod", ""} {
		l := New(Config{Env: env, Level: "warn"})
		if l == nil {
			t.Fatalf("New(%q) returned nil", env)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("env %q: info should be disabled at warn level", env)
		}
	}
}

func TestContext(t *testing.T) {
	if From(context.Background(), nil) == nil {
		t.Fatal("From() must never return nil")
	}

	l := zap.NewExample()
	ctx := ToContext(context.Background(), l)
	if From(ctx, nil) != l {
		t.Error("Expected logger from context")
	}

	fallback := zap.NewNop()
	if From(context.Background(), fallback) != fallback {
		t.Error("Expected fallback logger")
	}
}
