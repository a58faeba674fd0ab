// Package hookerr defines the typed failures the permit hook reports back
// through the transaction result. Codes follow the Anchor convention of custom
// program errors starting at 6000, grouped by category in blocks of 100.
package hookerr

import (
	"errors"
	"fmt"
)

// Category groups error codes by root cause so callers can branch without
// enumerating every code.
type Category uint8

const (
	CategoryConfiguration Category = iota + 1
	CategoryMalformed
	CategoryAuthorization
	CategoryTemporal
	CategoryReplay
)

func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "CONFIGURATION"
	case CategoryMalformed:
		return "MALFORMED"
	case CategoryAuthorization:
		return "AUTHORIZATION"
	case CategoryTemporal:
		return "TEMPORAL"
	case CategoryReplay:
		return "REPLAY"
	default:
		return "UNKNOWN"
	}
}

// Error is a hook failure with a stable numeric code.
type Error struct {
	Code     uint32
	Name     string
	Category Category
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

func newError(code uint32, name string, cat Category, msg string) *Error {
	e := &Error{Code: code, Name: name, Category: cat, Msg: msg}
	byCode[code] = e
	return e
}

var byCode = map[uint32]*Error{}

var (
	ErrAlreadyInitialized = newError(6000, "AlreadyInitialized", CategoryConfiguration, "permit authority already initialized")
	ErrNotInitialized     = newError(6001, "NotInitialized", CategoryConfiguration, "permit authority not initialized")
	ErrUnauthorized       = newError(6002, "Unauthorized", CategoryConfiguration, "unauthorized access")
	ErrHookPaused         = newError(6003, "HookPaused", CategoryConfiguration, "hook is paused")
	ErrInvalidTtlBounds   = newError(6004, "InvalidTtlBounds", CategoryConfiguration, "ttl bounds must satisfy 0 <= min_ttl <= max_ttl")

	ErrMalformedPermit      = newError(6100, "MalformedPermit", CategoryMalformed, "permit payload is malformed")
	ErrUnknownVersion       = newError(6101, "UnknownVersion", CategoryMalformed, "unknown permit version")
	ErrMalformedInstruction = newError(6102, "MalformedInstruction", CategoryMalformed, "instruction data is malformed")

	ErrInvalidSignature = newError(6200, "InvalidSignature", CategoryAuthorization, "permit signature does not verify against owner")
	ErrSpenderMismatch  = newError(6201, "SpenderMismatch", CategoryAuthorization, "transfer recipient is not the permit spender")
	ErrMintMismatch     = newError(6202, "MintMismatch", CategoryAuthorization, "transfer mint does not match permit mint")
	ErrAmountExceeded   = newError(6203, "AmountExceeded", CategoryAuthorization, "transfer amount exceeds permit amount")
	ErrOwnerMismatch    = newError(6204, "OwnerMismatch", CategoryAuthorization, "source owner is not the permit owner")

	ErrPermitExpired        = newError(6300, "PermitExpired", CategoryTemporal, "permit has expired")
	ErrPermitNotYetValid    = newError(6301, "PermitNotYetValid", CategoryTemporal, "permit is not yet valid")
	ErrPermitTtlOutOfBounds = newError(6302, "PermitTtlOutOfBounds", CategoryTemporal, "permit lifetime outside configured ttl bounds")

	ErrAlreadyUsed      = newError(6400, "AlreadyUsed", CategoryReplay, "nonce already used")
	ErrNonceTooOld      = newError(6401, "NonceTooOld", CategoryReplay, "nonce is below the replay window")
	ErrNonceTooFarAhead = newError(6402, "NonceTooFarAhead", CategoryReplay, "nonce is beyond the replay window")
)

// As returns the hook error wrapped anywhere in err's chain.
func As(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// FromCode looks up a hook error by its numeric code.
func FromCode(code uint32) (*Error, bool) {
	e, ok := byCode[code]
	return e, ok
}
