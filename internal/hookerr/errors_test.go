package hookerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAs_Wrapped(t *testing.T) {
	err := fmt.Errorf("execute: %w", ErrPermitExpired)

	he, ok := As(err)
	if !ok {
		t.Fatal("expected hook error in chain")
	}
	if he.Code != 6300 {
		t.Errorf("Code: got %d want 6300", he.Code)
	}
	if he.Category != CategoryTemporal {
		t.Errorf("Category: got %s want TEMPORAL", he.Category)
	}
	if !errors.Is(err, ErrPermitExpired) {
		t.Error("errors.Is must match the sentinel")
	}
}

func TestAs_PlainError(t *testing.T) {
	if _, ok := As(errors.New("redis down")); ok {
		t.Error("plain error must not be reported as a hook error")
	}
}

func TestFromCode(t *testing.T) {
	cases := []struct {
		code uint32
		want *Error
	}{
		{6000, ErrAlreadyInitialized},
		{6003, ErrHookPaused},
		{6101, ErrUnknownVersion},
		{6200, ErrInvalidSignature},
		{6400, ErrAlreadyUsed},
	}
	for _, tc := range cases {
		got, ok := FromCode(tc.code)
		if !ok || got != tc.want {
			t.Errorf("FromCode(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
	if _, ok := FromCode(1); ok {
		t.Error("unknown code must not resolve")
	}
}

func TestCodes_MatchCategoryBlock(t *testing.T) {
	for code, e := range byCode {
		block := Category((code-6000)/100 + 1)
		if block != e.Category {
			t.Errorf("%s: code %d in block %s but category %s", e.Name, code, block, e.Category)
		}
	}
}

func TestError_String(t *testing.T) {
	want := "AlreadyUsed (6400): nonce already used"
	if got := ErrAlreadyUsed.Error(); got != want {
		t.Errorf("Error(): got %q want %q", got, want)
	}
}
