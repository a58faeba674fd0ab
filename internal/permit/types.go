package permit

import (
	solana "github.com/gagliardetto/solana-go"
)

// Permit authorizes Spender to move up to Amount of Mint out of Owner's
// account once. It is built and signed off-chain; only its nonce is ever
// persisted by the hook.
type Permit struct {
	Owner   solana.PublicKey `json:"owner"`
	Spender solana.PublicKey `json:"spender"`
	Mint    solana.PublicKey `json:"mint"`
	Amount  uint64           `json:"amount"`
	Nonce   uint64           `json:"nonce"`
	// Expiry is an absolute unix timestamp, not a duration.
	Expiry int64 `json:"expiry"`
	// ValidAfter is the issued floor. Zero means valid immediately.
	ValidAfter int64 `json:"valid_after"`
}

// IsOpen reports whether the permit leaves the spender unset, allowing any
// recipient when the mint's policy permits open permits.
func (p Permit) IsOpen() bool {
	return p.Spender.IsZero()
}

// Canonical encoding layout.
const (
	Version uint8 = 1

	magicLen   = 8
	keyLen     = solana.PublicKeyLength
	headerLen  = magicLen + 1
	EncodedLen = headerLen + 3*keyLen + 4*8
)

var magic = [magicLen]byte{'P', 'R', 'M', 'T', 'H', 'O', 'O', 'K'}
