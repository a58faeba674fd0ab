package permit

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/0gfoundation/permit-hook/internal/hookerr"
)

// Verify reports whether sig is owner's ed25519 signature over message.
func Verify(owner solana.PublicKey, message []byte, sig solana.Signature) bool {
	return sig.Verify(owner, message)
}

// Sign signs the canonical encoding of p with the owner's key.
func Sign(p Permit, key solana.PrivateKey) (solana.Signature, error) {
	if !key.PublicKey().Equals(p.Owner) {
		return solana.Signature{}, fmt.Errorf("sign permit: key %s is not the owner %s", key.PublicKey(), p.Owner)
	}
	sig, err := key.Sign(Encode(p))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign permit: %w", err)
	}
	return sig, nil
}

// Signed is a decoded permit together with the exact bytes it was parsed
// from. Verification always runs over those bytes, never a re-encoding.
type Signed struct {
	Permit
	Signature solana.Signature

	raw []byte
}

// Open decodes raw and pairs it with sig. The signature is not checked
// until VerifySignature is called.
func Open(raw []byte, sig solana.Signature) (*Signed, error) {
	p, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &Signed{Permit: p, Signature: sig, raw: cp}, nil
}

// Bytes returns the canonical bytes the permit was decoded from.
func (s *Signed) Bytes() []byte {
	cp := make([]byte, len(s.raw))
	copy(cp, s.raw)
	return cp
}

// VerifySignature checks the signature against the permit owner.
func (s *Signed) VerifySignature() error {
	if !Verify(s.Owner, s.raw, s.Signature) {
		return fmt.Errorf("%w: owner %s", hookerr.ErrInvalidSignature, s.Owner)
	}
	return nil
}
