// Package api exposes the hook instruction surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/audit"
	"github.com/0gfoundation/permit-hook/internal/auth"
	"github.com/0gfoundation/permit-hook/internal/hook"
	"github.com/0gfoundation/permit-hook/internal/hookerr"
	"github.com/0gfoundation/permit-hook/internal/ledger"
	"github.com/0gfoundation/permit-hook/internal/transfer"
)

// Signed-request actions accepted by the write routes.
const (
	ActionTx       = "tx"
	ActionTransfer = "transfer"
)

// Hook is satisfied by *hook.Program.
type Hook interface {
	Process(ctx context.Context, inv hook.Invocation, data []byte) error
	Authority(ctx context.Context, mint solana.PublicKey) (*hook.AuthorityAccount, error)
	Nonces(ctx context.Context, owner, mint solana.PublicKey) (*hook.NonceAccount, error)
}

// Transferer is satisfied by *transfer.Ledger.
type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (*transfer.Receipt, error)
}

// TxRequest is the signed payload of POST /api/tx.
type TxRequest struct {
	// Data is the instruction data, base64 in JSON.
	Data []byte `json:"data"`
}

// Handler wires up all hook routes onto a Gin engine.
type Handler struct {
	hook   Hook
	ledger Transferer
	rdb    *redis.Client
	log    *zap.Logger
}

func NewHandler(h Hook, l Transferer, rdb *redis.Client, log *zap.Logger) *Handler {
	return &Handler{hook: h, ledger: l, rdb: rdb, log: log}
}

// Register mounts all routes. authMiddleware should already be applied to the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	// ── Instructions ───────────────────────────────────────────────────────
	rg.POST("/tx", h.handleTx)
	rg.POST("/transfer", h.handleTransfer)

	// ── Account reads ──────────────────────────────────────────────────────
	rg.GET("/mints/:mint/authority", h.handleAuthority)
	rg.GET("/mints/:mint/nonces/:owner", h.handleNonces)
	rg.GET("/mints/:mint/stats", h.handleStats)
}

// ── Instructions ───────────────────────────────────────────────────────────

func (h *Handler) handleTx(c *gin.Context) {
	signer, sr, ok := signedAction(c, ActionTx)
	if !ok {
		return
	}

	var req TxRequest
	if err := json.Unmarshal(sr.Payload, &req); err != nil || len(req.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tx payload"})
		return
	}

	inv := hook.Invocation{Signers: []solana.PublicKey{signer}}
	if err := h.hook.Process(c.Request.Context(), inv, req.Data); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleTransfer(c *gin.Context) {
	signer, sr, ok := signedAction(c, ActionTransfer)
	if !ok {
		return
	}

	var req transfer.Request
	if err := json.Unmarshal(sr.Payload, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer payload"})
		return
	}

	receipt, err := h.ledger.Transfer(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("transfer submitted",
		zap.String("submitter", signer.String()),
		zap.String("mint", receipt.Mint.String()),
		zap.Uint64("nonce", receipt.Nonce),
	)
	c.JSON(http.StatusOK, receipt)
}

// ── Account reads ──────────────────────────────────────────────────────────

type authorityView struct {
	State            string           `json:"state"`
	Authority        solana.PublicKey `json:"authority"`
	Mint             solana.PublicKey `json:"mint"`
	Paused           bool             `json:"paused"`
	MinTTL           int64            `json:"min_ttl"`
	MaxTTL           int64            `json:"max_ttl"`
	NonceWindow      uint16           `json:"nonce_window"`
	AllowOpenPermits bool             `json:"allow_open_permits"`
	InitializedAt    int64            `json:"initialized_at"`
}

func (h *Handler) handleAuthority(c *gin.Context) {
	mint, ok := keyParam(c, "mint")
	if !ok {
		return
	}
	a, err := h.hook.Authority(c.Request.Context(), mint)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not initialized", "state": hook.StateUninitialized.String()})
		return
	}
	c.JSON(http.StatusOK, authorityView{
		State:            a.State().String(),
		Authority:        a.Authority,
		Mint:             a.Mint,
		Paused:           a.Paused,
		MinTTL:           a.MinTTL,
		MaxTTL:           a.MaxTTL,
		NonceWindow:      a.NonceWindow,
		AllowOpenPermits: a.AllowOpenPermits,
		InitializedAt:    a.InitializedAt,
	})
}

type nonceView struct {
	Owner     solana.PublicKey `json:"owner"`
	Mint      solana.PublicKey `json:"mint"`
	NextNonce uint64           `json:"next_nonce"`
	Low       uint64           `json:"low"`
	Window    uint16           `json:"window"`
	Bitmap    []byte           `json:"bitmap"`
}

func (h *Handler) handleNonces(c *gin.Context) {
	mint, ok := keyParam(c, "mint")
	if !ok {
		return
	}
	owner, ok := keyParam(c, "owner")
	if !ok {
		return
	}
	n, err := h.hook.Nonces(c.Request.Context(), owner, mint)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if n == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no nonces used"})
		return
	}
	w, err := n.Restore()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonceView{
		Owner:     n.Owner,
		Mint:      n.Mint,
		NextNonce: n.NextNonce,
		Low:       w.Low(),
		Window:    n.Window,
		Bitmap:    n.Bitmap,
	})
}

func (h *Handler) handleStats(c *gin.Context) {
	mint, ok := keyParam(c, "mint")
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	s, err := audit.ReadStats(c.Request.Context(), h.rdb, mint.String(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ── Helpers ────────────────────────────────────────────────────────────────

func signedAction(c *gin.Context, action string) (solana.PublicKey, auth.SignedRequest, bool) {
	signer, ok := auth.Signer(c)
	sr, ok2 := auth.Request(c)
	if !ok || !ok2 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return solana.PublicKey{}, auth.SignedRequest{}, false
	}
	if sr.Action != action {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signed action mismatch", "want": action})
		return solana.PublicKey{}, auth.SignedRequest{}, false
	}
	return signer, sr, true
}

func keyParam(c *gin.Context, name string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return solana.PublicKey{}, false
	}
	return pk, true
}

// StatusFor maps a hook error category to an HTTP status.
func StatusFor(err error) int {
	he, ok := hookerr.As(err)
	if !ok {
		if errors.Is(err, ledger.ErrAccountLocked) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	switch he.Category {
	case hookerr.CategoryMalformed:
		return http.StatusBadRequest
	case hookerr.CategoryConfiguration, hookerr.CategoryAuthorization:
		return http.StatusForbidden
	case hookerr.CategoryReplay:
		return http.StatusConflict
	case hookerr.CategoryTemporal:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	he, ok := hookerr.As(err)
	if !ok {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{
		"error":    he.Name,
		"code":     he.Code,
		"category": he.Category.String(),
		"message":  err.Error(),
	})
}
