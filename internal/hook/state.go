package hook

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/0gfoundation/permit-hook/internal/nonce"
)

// DefaultNonceWindow is used when Initialize leaves the window unset.
const DefaultNonceWindow uint16 = 64

var errInvalidAccountData = errors.New("invalid account data")

// State is the lifecycle state of a mint's permit authority.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateActive:
		return "ACTIVE"
	case StatePaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// AuthorityAccount is the per-mint policy account, PDA ["authority", mint].
type AuthorityAccount struct {
	Authority        solana.PublicKey
	Mint             solana.PublicKey
	Paused           bool
	MinTTL           int64
	MaxTTL           int64
	NonceWindow      uint16
	AllowOpenPermits bool
	InitializedAt    int64
	Bump             uint8
}

func (a *AuthorityAccount) State() State {
	if a.Paused {
		return StatePaused
	}
	return StateActive
}

// TtlEnforced reports whether permits must fit the ttl bounds.
func (a *AuthorityAccount) TtlEnforced() bool {
	return a.MaxTTL > 0
}

// NonceAccount is the replay window of one owner for one mint,
// PDA ["nonce", owner, mint].
type NonceAccount struct {
	Owner     solana.PublicKey
	Mint      solana.PublicKey
	NextNonce uint64
	Window    uint16
	Bitmap    []byte
}

// Restore rebuilds the replay window held by the account.
func (n *NonceAccount) Restore() (*nonce.Window, error) {
	return nonce.Restore(n.Window, n.NextNonce, n.Bitmap)
}

// Store copies the window's state back into the account.
func (n *NonceAccount) Store(w *nonce.Window) {
	n.NextNonce = w.Next()
	n.Window = w.Size()
	n.Bitmap = w.Bitmap()
}

var (
	authorityDiscriminator = discriminator("PermitAuthority")
	nonceDiscriminator     = discriminator("NonceAccount")
)

// discriminator follows the Anchor layout: sha256("account:<Name>")[:8].
func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func encodeAccount(disc [8]byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAccount(data []byte, disc [8]byte, v interface{}) error {
	if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc[:]) {
		return fmt.Errorf("%w: discriminator mismatch", errInvalidAccountData)
	}
	if err := bin.NewBorshDecoder(data[len(disc):]).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidAccountData, err)
	}
	return nil
}

func decodeAuthority(data []byte) (*AuthorityAccount, error) {
	var a AuthorityAccount
	if err := decodeAccount(data, authorityDiscriminator, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeNonce(data []byte) (*NonceAccount, error) {
	var n NonceAccount
	if err := decodeAccount(data, nonceDiscriminator, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// AuthorityAddress derives the PDA of mint's authority account.
func AuthorityAddress(program, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("authority"), mint[:]}, program)
}

// NonceAddress derives the PDA of owner's nonce account for mint.
func NonceAddress(program, owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("nonce"), owner[:], mint[:]}, program)
}
