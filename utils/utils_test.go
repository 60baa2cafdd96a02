package utils

import (
	"context"
	"testing"
)

func TestBytesMD5(t *testing.T) {
	got := BytesMD5([]byte("leaf"))
	if len(got) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(got))
	}
	if got != BytesMD5([]byte("leaf")) {
		t.Error("md5 should be deterministic")
	}
	if got == BytesMD5([]byte("leaf2")) {
		t.Error("different inputs should hash differently")
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}

func TestWithRequestBeforeInit(t *testing.T) {
	// 未初始化时使用 Nop 日志，不应panic
	WithRequest("test", "abc").Info("noop")
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFrom(ctx); got != "req-1" {
		t.Errorf("expected req-1, got %q", got)
	}
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}
