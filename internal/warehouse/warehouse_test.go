package warehouse

import (
	"context"
	"strings"
	"testing"
)

func TestRegister_PanicsOnEmptyKind(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for empty kind")
		}
	}()
	Register("", func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil })
}

func TestRegister_PanicsOnNilFactory(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil factory")
		}
	}()
	Register("nilfactory", nil)
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }
	Register("dup-kind", f)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for duplicate kind")
		}
	}()
	Register("dup-kind", f)
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "no-such-kind"}); err == nil {
		t.Fatalf("expected error for unregistered kind")
	} else if !strings.Contains(err.Error(), "unsupported kind") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_EmptyKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestNew_DelegatesToFactory(t *testing.T) {
	called := 0
	Register("test-kind", func(ctx context.Context, cfg Config) (Repository, error) {
		called++
		if cfg.DSN != "dsn://x" {
			t.Fatalf("expected DSN passthrough, got %q", cfg.DSN)
		}
		return nil, nil
	})

	if _, err := New(context.Background(), Config{Kind: "test-kind", DSN: "dsn://x"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected 1 factory call, got %d", called)
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" hamilton ", "hamilton"},
		{int64(2024), "2024"},
		{42, "42"},
		{[]byte(" max_verstappen "), "max_verstappen"},
		{3.5, "3.5"},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Fatalf("NormalizeKey(%v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
