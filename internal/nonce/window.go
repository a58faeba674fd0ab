// Package nonce implements the per-owner replay window used by the permit
// hook: a sliding bitmap over the last Size nonces below Next.
//
// A nonce n is accepted once when Next-Size <= n < Next+Size. Accepting a
// nonce at or above Next slides the window so Next becomes n+1. Size 1 is
// strict sequential ordering.
package nonce

import (
	"fmt"
	"math"
	"math/big"

	"github.com/0gfoundation/permit-hook/internal/hookerr"
)

// MaxSize bounds the persisted bitmap to 128 bytes.
const MaxSize = 1024

// Window is the replay state for one (owner, mint) pair.
type Window struct {
	size uint16
	next uint64
	// bit k set means nonce next-1-k was consumed
	bitmap *big.Int
	mask   *big.Int
}

// New returns an empty window of the given size.
func New(size uint16) (*Window, error) {
	if size == 0 || size > MaxSize {
		return nil, fmt.Errorf("nonce window size %d out of range [1, %d]", size, MaxSize)
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(size))
	mask.Sub(mask, big.NewInt(1))
	return &Window{size: size, bitmap: new(big.Int), mask: mask}, nil
}

// Restore rebuilds a window from its persisted form.
func Restore(size uint16, next uint64, bitmap []byte) (*Window, error) {
	w, err := New(size)
	if err != nil {
		return nil, err
	}
	if len(bitmap) != bitmapLen(size) {
		return nil, fmt.Errorf("nonce bitmap: got %d bytes, want %d", len(bitmap), bitmapLen(size))
	}
	w.next = next
	w.bitmap.SetBytes(bitmap)
	w.bitmap.And(w.bitmap, w.mask)
	return w, nil
}

// Size returns the window size.
func (w *Window) Size() uint16 { return w.size }

// Next returns one past the highest consumed nonce.
func (w *Window) Next() uint64 { return w.next }

// Low returns the smallest nonce that can still be reserved.
func (w *Window) Low() uint64 {
	if w.next < uint64(w.size) {
		return 0
	}
	return w.next - uint64(w.size)
}

// Bitmap returns the fixed-length big-endian encoding of the consumed set.
func (w *Window) Bitmap() []byte {
	return w.bitmap.FillBytes(make([]byte, bitmapLen(w.size)))
}

// Consumed reports whether n has been reserved. Nonces that fell out of the
// window are reported as consumed since they can never be reserved again.
func (w *Window) Consumed(n uint64) bool {
	if n >= w.next {
		return false
	}
	k := w.next - 1 - n
	if k >= uint64(w.size) {
		return true
	}
	return w.bitmap.Bit(int(k)) == 1
}

// Reserve marks n consumed or reports why it cannot be.
func (w *Window) Reserve(n uint64) error {
	size := uint64(w.size)

	if n >= w.next {
		if n-w.next >= size || n == math.MaxUint64 {
			return fmt.Errorf("%w: nonce %d, next %d, window %d", hookerr.ErrNonceTooFarAhead, n, w.next, size)
		}
		shift := n - w.next + 1
		w.bitmap.Lsh(w.bitmap, uint(shift))
		w.bitmap.SetBit(w.bitmap, 0, 1)
		w.bitmap.And(w.bitmap, w.mask)
		w.next = n + 1
		return nil
	}

	k := w.next - 1 - n
	if k >= size {
		return fmt.Errorf("%w: nonce %d, lowest %d", hookerr.ErrNonceTooOld, n, w.Low())
	}
	if w.bitmap.Bit(int(k)) == 1 {
		return fmt.Errorf("%w: nonce %d", hookerr.ErrAlreadyUsed, n)
	}
	w.bitmap.SetBit(w.bitmap, int(k), 1)
	return nil
}

func bitmapLen(size uint16) int {
	return (int(size) + 7) / 8
}
