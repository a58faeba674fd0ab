package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	solana "github.com/gagliardetto/solana-go"
)

// SignHeaders produces the auth headers for req signed by key.
func SignHeaders(key solana.PrivateKey, req SignedRequest) (http.Header, error) {
	msg, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal signed request: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	h := http.Header{}
	h.Set(HeaderSigner, key.PublicKey().String())
	h.Set(HeaderSignedMessage, base64.StdEncoding.EncodeToString(msg))
	h.Set(HeaderSignature, sig.String())
	return h, nil
}
