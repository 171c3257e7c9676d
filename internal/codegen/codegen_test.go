package codegen

import (
	"strings"
	"testing"
)

func TestNew_Length(t *testing.T) {
	for _, n := range []int{1, 8, 32} {
		code, err := New(n)
		if err != nil {
			t.Fatalf("New(%d) error: %v", n, err)
		}
		if len(code) != n {
			t.Fatalf("New(%d) produced %d characters: %q", n, len(code), code)
		}
	}
}

func TestNew_Alphabet(t *testing.T) {
	code, err := New(64)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			t.Fatalf("character %q outside alphabet in %q", r, code)
		}
	}
}

func TestNew_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n); err != ErrInvalidLength {
			t.Fatalf("New(%d) = %v, want ErrInvalidLength", n, err)
		}
	}
}

func TestNew_NotConstant(t *testing.T) {
	a, err := New(DefaultLength)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	b, err := New(DefaultLength)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if a == b {
		t.Fatalf("two generated codes collided: %q", a)
	}
}
