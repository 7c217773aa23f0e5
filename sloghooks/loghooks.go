package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/silverpine/tagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	BulkRetryEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	bulkRetryCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tagcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) BulkRetryScheduled(ids []string) {
	if h.l == nil || !sample(h.opts.BulkRetryEvery, &h.bulkRetryCtr) {
		return
	}
	h.l.Info("tagcache.bulk_retry_scheduled",
		"count", len(ids))
}

func (h *Hooks) RetryFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.retry_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) BackendFatal(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.backend_fatal",
		"op", op,
		"err", err)
}

func (h *Hooks) EvictionPolicyViolation(policy string) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.eviction_policy_violation",
		"policy", policy)
}

func (h *Hooks) InvalidateChunk(tag string, chunkSize int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tagcache.invalidate_chunk",
		"tag", h.redact(tag),
		"chunk_size", chunkSize)
}
