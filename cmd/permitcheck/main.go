// cmd/permitcheck/main.go: decodes a permit offline, checks the owner's
// signature and prints the accounts the hook would touch.
//
// Usage examples:
//
//   # decode + verify
//   go run ./cmd/permitcheck/ --permit <base64> --signature <base58> \
//     --program FLCeHJtrs6ENYehB6BC3TctxHUPqzsquBGqhJHgQnyE3
//
//   # also evaluate expiry against a given unix time
//   go run ./cmd/permitcheck/ --permit <base64> --at 1700000010
package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"

	"github.com/0gfoundation/permit-hook/internal/hook"
	"github.com/0gfoundation/permit-hook/internal/permit"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("permitcheck", pflag.ContinueOnError)
	fs.SetOutput(out)
	permitB64 := fs.String("permit", "", "canonical permit bytes, base64 (required)")
	sigB58 := fs.String("signature", "", "owner signature over the permit, base58")
	programB58 := fs.String("program", "", "hook program id, base58; prints derived accounts")
	at := fs.Int64("at", 0, "unix time to evaluate expiry against (default now)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *permitB64 == "" {
		return errors.New("--permit is required")
	}

	raw, err := base64.StdEncoding.DecodeString(*permitB64)
	if err != nil {
		return fmt.Errorf("decode --permit: %w", err)
	}
	p, err := permit.Decode(raw)
	if err != nil {
		return err
	}

	now := *at
	if now == 0 {
		now = time.Now().Unix()
	}

	fmt.Fprintf(out, "version:     %d\n", permit.Version)
	fmt.Fprintf(out, "owner:       %s\n", p.Owner)
	if p.IsOpen() {
		fmt.Fprintf(out, "spender:     (open)\n")
	} else {
		fmt.Fprintf(out, "spender:     %s\n", p.Spender)
	}
	fmt.Fprintf(out, "mint:        %s\n", p.Mint)
	fmt.Fprintf(out, "amount:      %d\n", p.Amount)
	fmt.Fprintf(out, "nonce:       %d\n", p.Nonce)
	fmt.Fprintf(out, "valid_after: %d\n", p.ValidAfter)
	fmt.Fprintf(out, "expiry:      %d (%s)\n", p.Expiry, timeStatus(p, now))

	if *sigB58 != "" {
		sig, err := solana.SignatureFromBase58(*sigB58)
		if err != nil {
			return fmt.Errorf("decode --signature: %w", err)
		}
		if permit.Verify(p.Owner, raw, sig) {
			fmt.Fprintln(out, "signature:   valid")
		} else {
			fmt.Fprintln(out, "signature:   INVALID")
		}
	}

	if *programB58 != "" {
		program, err := solana.PublicKeyFromBase58(*programB58)
		if err != nil {
			return fmt.Errorf("decode --program: %w", err)
		}
		authAddr, authBump, err := hook.AuthorityAddress(program, p.Mint)
		if err != nil {
			return err
		}
		nonceAddr, nonceBump, err := hook.NonceAddress(program, p.Owner, p.Mint)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "authority:   %s (bump %d)\n", authAddr, authBump)
		fmt.Fprintf(out, "nonces:      %s (bump %d)\n", nonceAddr, nonceBump)
	}
	return nil
}

func timeStatus(p permit.Permit, now int64) string {
	switch {
	case now > p.Expiry:
		return "expired"
	case now < p.ValidAfter:
		return "not yet valid"
	default:
		return fmt.Sprintf("valid for %ds", p.Expiry-now)
	}
}
