package nonce

import (
	"errors"
	"testing"

	"github.com/0gfoundation/permit-hook/internal/hookerr"
)

func mustWindow(t *testing.T, size uint16) *Window {
	t.Helper()
	w, err := New(size)
	if err != nil {
		t.Fatalf("New(%d): %v", size, err)
	}
	return w
}

func TestNew_SizeBounds(t *testing.T) {
	for _, size := range []uint16{0, MaxSize + 1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d): expected error", size)
		}
	}
	if _, err := New(MaxSize); err != nil {
		t.Errorf("New(MaxSize): %v", err)
	}
}

// ── Reserve ─────────────────────────────────────────────────────────────────

func TestReserve_SingleUse(t *testing.T) {
	w := mustWindow(t, 64)

	if err := w.Reserve(1); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if err := w.Reserve(1); !errors.Is(err, hookerr.ErrAlreadyUsed) {
		t.Errorf("second Reserve: got %v, want AlreadyUsed", err)
	}
	if w.Next() != 2 {
		t.Errorf("Next: got %d want 2", w.Next())
	}
}

func TestReserve_OutOfOrderWithinWindow(t *testing.T) {
	w := mustWindow(t, 8)

	for _, n := range []uint64{5, 2, 7, 3, 0} {
		if err := w.Reserve(n); err != nil {
			t.Fatalf("Reserve(%d): %v", n, err)
		}
	}
	for _, n := range []uint64{5, 2, 7, 3, 0} {
		if err := w.Reserve(n); !errors.Is(err, hookerr.ErrAlreadyUsed) {
			t.Errorf("replay Reserve(%d): got %v, want AlreadyUsed", n, err)
		}
	}
	for _, n := range []uint64{1, 4, 6} {
		if w.Consumed(n) {
			t.Errorf("nonce %d reported consumed", n)
		}
	}
	if w.Next() != 8 {
		t.Errorf("Next: got %d want 8", w.Next())
	}
}

func TestReserve_TooOld(t *testing.T) {
	w := mustWindow(t, 4)

	if err := w.Reserve(10); !errors.Is(err, hookerr.ErrNonceTooFarAhead) {
		t.Fatalf("Reserve(10) on fresh window: got %v, want NonceTooFarAhead", err)
	}
	for n := uint64(0); n < 10; n++ {
		if err := w.Reserve(n); err != nil {
			t.Fatalf("Reserve(%d): %v", n, err)
		}
	}
	// next = 10, window covers [6, 10)
	if w.Low() != 6 {
		t.Errorf("Low: got %d want 6", w.Low())
	}
	if err := w.Reserve(5); !errors.Is(err, hookerr.ErrNonceTooOld) {
		t.Errorf("Reserve(5): got %v, want NonceTooOld", err)
	}
	if !w.Consumed(5) {
		t.Error("nonce below the window must report consumed")
	}
}

func TestReserve_SkippedNonceExpiresFromWindow(t *testing.T) {
	w := mustWindow(t, 4)

	if err := w.Reserve(3); err != nil {
		t.Fatalf("Reserve(3): %v", err)
	}
	// 0..2 skipped but still inside the window.
	if w.Consumed(1) {
		t.Fatal("skipped nonce 1 must still be reservable")
	}
	for _, n := range []uint64{4, 5, 6} {
		if err := w.Reserve(n); err != nil {
			t.Fatalf("Reserve(%d): %v", n, err)
		}
	}
	// next = 7, window covers [3, 7): 1 has slid out.
	if err := w.Reserve(1); !errors.Is(err, hookerr.ErrNonceTooOld) {
		t.Errorf("Reserve(1): got %v, want NonceTooOld", err)
	}
}

func TestReserve_StrictSequential(t *testing.T) {
	w := mustWindow(t, 1)

	if err := w.Reserve(1); !errors.Is(err, hookerr.ErrNonceTooFarAhead) {
		t.Fatalf("Reserve(1) before 0: got %v, want NonceTooFarAhead", err)
	}
	for n := uint64(0); n < 5; n++ {
		if err := w.Reserve(n); err != nil {
			t.Fatalf("Reserve(%d): %v", n, err)
		}
	}
	if err := w.Reserve(4); !errors.Is(err, hookerr.ErrAlreadyUsed) {
		t.Errorf("Reserve(4) again: got %v, want AlreadyUsed", err)
	}
	if err := w.Reserve(3); !errors.Is(err, hookerr.ErrNonceTooOld) {
		t.Errorf("Reserve(3): got %v, want NonceTooOld", err)
	}
}

func TestReserve_MaxNonceRejected(t *testing.T) {
	w := mustWindow(t, MaxSize)
	w.next = ^uint64(0) - 1

	if err := w.Reserve(^uint64(0)); !errors.Is(err, hookerr.ErrNonceTooFarAhead) {
		t.Errorf("got %v, want NonceTooFarAhead", err)
	}
}

// Next never decreases and a consumed nonce is never reported unconsumed.
func TestReserve_Monotonic(t *testing.T) {
	w := mustWindow(t, 16)
	consumed := map[uint64]bool{}
	prevNext := w.Next()

	seq := []uint64{3, 1, 9, 9, 4, 20, 11, 2, 30, 25, 15, 45, 31, 60, 44}
	for _, n := range seq {
		if err := w.Reserve(n); err == nil {
			consumed[n] = true
		}
		if w.Next() < prevNext {
			t.Fatalf("Next decreased from %d to %d", prevNext, w.Next())
		}
		prevNext = w.Next()
		for c := range consumed {
			if !w.Consumed(c) {
				t.Fatalf("nonce %d un-consumed after Reserve(%d)", c, n)
			}
		}
	}
}

// ── Persistence ─────────────────────────────────────────────────────────────

func TestRestore_RoundTrip(t *testing.T) {
	w := mustWindow(t, 20)
	for _, n := range []uint64{0, 4, 7, 19, 12} {
		if err := w.Reserve(n); err != nil {
			t.Fatalf("Reserve(%d): %v", n, err)
		}
	}

	bm := w.Bitmap()
	if len(bm) != 3 {
		t.Fatalf("bitmap length: got %d want 3", len(bm))
	}

	r, err := Restore(w.Size(), w.Next(), bm)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for n := uint64(0); n < 25; n++ {
		if r.Consumed(n) != w.Consumed(n) {
			t.Errorf("nonce %d: restored consumed=%v original=%v", n, r.Consumed(n), w.Consumed(n))
		}
	}
	if err := r.Reserve(12); !errors.Is(err, hookerr.ErrAlreadyUsed) {
		t.Errorf("restored Reserve(12): got %v, want AlreadyUsed", err)
	}
}

func TestRestore_BadBitmapLength(t *testing.T) {
	if _, err := Restore(16, 0, []byte{0}); err == nil {
		t.Error("expected error for short bitmap")
	}
}
