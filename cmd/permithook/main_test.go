package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/alicebob/miniredis/v2"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/api"
	"github.com/0gfoundation/permit-hook/internal/audit"
	"github.com/0gfoundation/permit-hook/internal/auth"
	"github.com/0gfoundation/permit-hook/internal/events"
	"github.com/0gfoundation/permit-hook/internal/hook"
	"github.com/0gfoundation/permit-hook/internal/ledger"
	"github.com/0gfoundation/permit-hook/internal/permit"
	"github.com/0gfoundation/permit-hook/internal/transfer"
)

func init() { gin.SetMode(gin.TestMode) }

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	testProgram = solana.MustPublicKeyFromBase58("FLCeHJtrs6ENYehB6BC3TctxHUPqzsquBGqhJHgQnyE3")
	testMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func signedPost(t *testing.T, r http.Handler, path string, key solana.PrivateKey, action, nonce string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	h, err := auth.SignHeaders(key, auth.SignedRequest{
		Action:    action,
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
		Nonce:     nonce,
		Payload:   raw,
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k := range h {
		req.Header.Set(k, h.Get(k))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── newLogger ─────────────────────────────────────────────────────────────────

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := newLogger(lvl); err != nil {
			t.Errorf("newLogger(%q): %v", lvl, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("newLogger(loud): expected error")
	}
}

// ── newRouter ─────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	mr, rdb := newTestRedis(t)
	log := zap.NewNop()
	prog := hook.New(testProgram, ledger.NewRedisStore(rdb, 0, log), log)
	r := newRouter(rdb, prog, transfer.NewLedger(prog, log), time.Minute, log)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("redis down: expected 503, got %d", w.Code)
	}
}

// TestPipeline_TransferToAuditStats wires the node the way main does, with an
// in-process pub/sub in place of Redis streams.
func TestPipeline_TransferToAuditStats(t *testing.T) {
	_, rdb := newTestRedis(t)
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16, Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { ps.Close() })
	go audit.Run(ctx, ps, events.DefaultTopic, rdb, log) //nolint:errcheck

	now := time.Now().Unix()
	prog := hook.New(testProgram, ledger.NewRedisStore(rdb, 0, log), log,
		hook.WithEvents(events.NewWatermillPublisher(ps, events.DefaultTopic)))
	r := newRouter(rdb, prog, transfer.NewLedger(prog, log), time.Minute, log)

	authority := solana.NewWallet().PrivateKey
	owner := solana.NewWallet().PrivateKey
	spender := solana.NewWallet().PrivateKey

	data, err := hook.EncodeInstruction(hook.InitializeArgs{Mint: testMint, Authority: authority.PublicKey()})
	if err != nil {
		t.Fatal(err)
	}
	if w := signedPost(t, r, "/api/tx", authority, api.ActionTx, "n-1", api.TxRequest{Data: data}); w.Code != http.StatusOK {
		t.Fatalf("initialize: %d %s", w.Code, w.Body.String())
	}

	pm := permit.Permit{
		Owner:   owner.PublicKey(),
		Spender: spender.PublicKey(),
		Mint:    testMint,
		Amount:  100,
		Nonce:   1,
		Expiry:  now + 3600,
	}
	sig, err := permit.Sign(pm, owner)
	if err != nil {
		t.Fatal(err)
	}
	req := transfer.Request{
		SourceOwner:      owner.PublicKey(),
		DestinationOwner: spender.PublicKey(),
		Mint:             testMint,
		Amount:           60,
		Permit:           permit.Encode(pm),
		Signature:        sig,
	}
	if w := signedPost(t, r, "/api/transfer", spender, api.ActionTransfer, "n-2", req); w.Code != http.StatusOK {
		t.Fatalf("transfer: %d %s", w.Code, w.Body.String())
	}
	if w := signedPost(t, r, "/api/transfer", spender, api.ActionTransfer, "n-3", req); w.Code != http.StatusConflict {
		t.Fatalf("replay: expected 409, got %d %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := audit.ReadStats(ctx, rdb, testMint.String(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if s.Redeemed == 1 && s.Rejected == 1 {
			if s.RedeemedAmount.String() != "60" {
				t.Errorf("RedeemedAmount: got %s want 60", s.RedeemedAmount)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit stats not updated: %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
