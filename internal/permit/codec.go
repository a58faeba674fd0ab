package permit

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/0gfoundation/permit-hook/internal/hookerr"
)

// Encode returns the canonical byte encoding of p. These exact bytes are what
// the owner signs; every field is fixed width so distinct permits never share
// an encoding.
func Encode(p Permit) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, EncodedLen))
	enc := bin.NewBinEncoder(buf)

	// Writes into a bytes.Buffer cannot fail.
	_ = enc.WriteBytes(magic[:], false)
	_ = enc.WriteUint8(Version)
	_ = enc.WriteBytes(p.Owner[:], false)
	_ = enc.WriteBytes(p.Spender[:], false)
	_ = enc.WriteBytes(p.Mint[:], false)
	_ = enc.WriteUint64(p.Amount, bin.LE)
	_ = enc.WriteUint64(p.Nonce, bin.LE)
	_ = enc.WriteInt64(p.Expiry, bin.LE)
	_ = enc.WriteInt64(p.ValidAfter, bin.LE)
	return buf.Bytes()
}

// Decode parses a canonical permit encoding.
func Decode(b []byte) (Permit, error) {
	if len(b) < headerLen {
		return Permit{}, fmt.Errorf("%w: %d bytes, need at least %d", hookerr.ErrMalformedPermit, len(b), headerLen)
	}
	if !bytes.Equal(b[:magicLen], magic[:]) {
		return Permit{}, fmt.Errorf("%w: bad magic", hookerr.ErrMalformedPermit)
	}
	if v := b[magicLen]; v != Version {
		return Permit{}, fmt.Errorf("%w: %d", hookerr.ErrUnknownVersion, v)
	}
	if len(b) != EncodedLen {
		return Permit{}, fmt.Errorf("%w: %d bytes, want %d", hookerr.ErrMalformedPermit, len(b), EncodedLen)
	}

	dec := bin.NewBinDecoder(b[headerLen:])
	var (
		p   Permit
		err error
	)
	if p.Owner, err = readKey(dec); err != nil {
		return Permit{}, err
	}
	if p.Spender, err = readKey(dec); err != nil {
		return Permit{}, err
	}
	if p.Mint, err = readKey(dec); err != nil {
		return Permit{}, err
	}
	if p.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return Permit{}, fmt.Errorf("%w: amount: %v", hookerr.ErrMalformedPermit, err)
	}
	if p.Nonce, err = dec.ReadUint64(bin.LE); err != nil {
		return Permit{}, fmt.Errorf("%w: nonce: %v", hookerr.ErrMalformedPermit, err)
	}
	if p.Expiry, err = dec.ReadInt64(bin.LE); err != nil {
		return Permit{}, fmt.Errorf("%w: expiry: %v", hookerr.ErrMalformedPermit, err)
	}
	if p.ValidAfter, err = dec.ReadInt64(bin.LE); err != nil {
		return Permit{}, fmt.Errorf("%w: valid_after: %v", hookerr.ErrMalformedPermit, err)
	}

	if p.Amount == 0 {
		return Permit{}, fmt.Errorf("%w: zero amount", hookerr.ErrMalformedPermit)
	}
	return p, nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(keyLen)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", hookerr.ErrMalformedPermit, err)
	}
	return solana.PublicKeyFromBytes(raw), nil
}
