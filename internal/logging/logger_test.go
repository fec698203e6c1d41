package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("svc", "test", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	l, err := New("svc", "test", "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Error("debug level should be enabled")
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if got := FromContext(context.Background()); got != zap.L() {
		t.Error("expected global logger when none attached")
	}
	l := zap.NewNop()
	ctx := WithContext(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Error("expected attached logger")
	}
	if got := WithContext(ctx, nil); got != ctx {
		t.Error("nil logger should leave context untouched")
	}
}
