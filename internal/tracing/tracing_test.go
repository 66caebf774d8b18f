package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	p, err := Init(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestWithSpanPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := WithSpan(context.Background(), "test.span", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestWithSpanReturnsNilOnSuccess(t *testing.T) {
	err := WithSpan(context.Background(), "test.span", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
