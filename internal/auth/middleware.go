package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
type SignedRequest struct {
	Action    string          `json:"action"`
	ExpiresAt int64           `json:"expires_at"`
	Nonce     string          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	HeaderSigner        = "X-Signer"
	HeaderSignedMessage = "X-Signed-Message"
	HeaderSignature     = "X-Signature"

	// Gin context keys set on success.
	ContextSigner  = "signer"
	ContextRequest = "signed_request"

	DefaultMaxFutureWindow = 5 * time.Minute

	nonceKeyPrefix = "auth:nonce:"
)

// Middleware returns a Gin handler that validates ed25519 request signatures.
func Middleware(rdb *redis.Client, maxFutureWindow time.Duration) gin.HandlerFunc {
	if maxFutureWindow <= 0 {
		maxFutureWindow = DefaultMaxFutureWindow
	}
	return func(c *gin.Context) {
		signerB58 := c.GetHeader(HeaderSigner)
		signedMsgB64 := c.GetHeader(HeaderSignedMessage)
		sigB58 := c.GetHeader(HeaderSignature)

		if signerB58 == "" || signedMsgB64 == "" || sigB58 == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}

		signer, err := solana.PublicKeyFromBase58(signerB58)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signer"})
			return
		}

		// Decode signed message
		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}
		if req.Nonce == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing nonce"})
			return
		}

		now := time.Now().Unix()

		// Check expiry
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		sig, err := solana.SignatureFromBase58(sigB58)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature encoding"})
			return
		}
		if !sig.Verify(signer, msgBytes) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Nonce dedup via Redis SET NX
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(c.Request.Context(), nonceKeyPrefix+req.Nonce, signer.String(), ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(ContextSigner, signer)
		c.Set(ContextRequest, req)
		c.Next()
	}
}

// Signer returns the verified signer of the request.
func Signer(c *gin.Context) (solana.PublicKey, bool) {
	v, ok := c.Get(ContextSigner)
	if !ok {
		return solana.PublicKey{}, false
	}
	pk, ok := v.(solana.PublicKey)
	return pk, ok
}

// Request returns the verified signed request.
func Request(c *gin.Context) (SignedRequest, bool) {
	v, ok := c.Get(ContextRequest)
	if !ok {
		return SignedRequest{}, false
	}
	req, ok := v.(SignedRequest)
	return req, ok
}
