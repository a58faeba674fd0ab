package hook

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/0gfoundation/permit-hook/internal/hookerr"
)

// Instruction tags, the first byte of instruction data.
const (
	TagInitialize   uint8 = 0
	TagSetPaused    uint8 = 1
	TagExecute      uint8 = 2
	TagSetTtlBounds uint8 = 3
)

type InitializeArgs struct {
	Mint             solana.PublicKey
	Authority        solana.PublicKey
	MinTTL           int64
	MaxTTL           int64
	NonceWindow      uint16
	AllowOpenPermits bool
}

type SetPausedArgs struct {
	Mint   solana.PublicKey
	Paused bool
}

type SetTtlBoundsArgs struct {
	Mint   solana.PublicKey
	MinTTL int64
	MaxTTL int64
}

// ExecuteArgs carries the permit exactly as the owner signed it.
type ExecuteArgs struct {
	Permit    []byte
	Signature solana.Signature
}

// EncodeInstruction serializes args behind their tag.
func EncodeInstruction(args interface{}) ([]byte, error) {
	var tag uint8
	switch args.(type) {
	case InitializeArgs, *InitializeArgs:
		tag = TagInitialize
	case SetPausedArgs, *SetPausedArgs:
		tag = TagSetPaused
	case ExecuteArgs, *ExecuteArgs:
		tag = TagExecute
	case SetTtlBoundsArgs, *SetTtlBoundsArgs:
		tag = TagSetTtlBounds
	default:
		return nil, fmt.Errorf("encode instruction: unsupported args %T", args)
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(tag)
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("encode instruction: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses instruction data into a pointer to its args.
func DecodeInstruction(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", hookerr.ErrMalformedInstruction)
	}

	var args interface{}
	switch data[0] {
	case TagInitialize:
		args = new(InitializeArgs)
	case TagSetPaused:
		args = new(SetPausedArgs)
	case TagExecute:
		args = new(ExecuteArgs)
	case TagSetTtlBounds:
		args = new(SetTtlBoundsArgs)
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", hookerr.ErrMalformedInstruction, data[0])
	}

	dec := bin.NewBorshDecoder(data[1:])
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("%w: %v", hookerr.ErrMalformedInstruction, err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", hookerr.ErrMalformedInstruction, dec.Remaining())
	}
	return args, nil
}
