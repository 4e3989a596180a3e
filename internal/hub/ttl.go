package hub

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically sweeps idle
// workspaces, idle device records and expired analysis runs.
func (h *Hub) StartTTLWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = ttlWorkerInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "workspace_ttl", h.cfg.WorkspaceTTL)

		for {
			select {
			case <-ticker.C:
				h.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one cleanup pass and returns how many workspaces it destroyed.
func (h *Hub) Sweep(ctx context.Context) int {
	cutoff := h.cfg.Now().Add(-h.cfg.WorkspaceTTL)

	type key struct{ user, session string }
	var expired []key
	h.mu.Lock()
	for userID, sessions := range h.workspaces {
		for sessionID, ws := range sessions {
			if ws.LastUsed().Before(cutoff) {
				expired = append(expired, key{userID, sessionID})
			}
		}
	}
	h.mu.Unlock()

	cleaned := 0
	for _, k := range expired {
		if h.Destroy(k.user, k.session) {
			cleaned++
		}
	}
	if cleaned > 0 {
		slog.Info("TTL worker destroyed idle workspaces", "count", cleaned)
	}

	if h.cfg.Pool != nil && h.cfg.DeviceTTL > 0 {
		if n := h.cfg.Pool.Prune(h.cfg.DeviceTTL); n > 0 {
			slog.Info("TTL worker pruned backend clients", "count", n)
		}
	}

	if h.cfg.Repo == nil || ctx.Err() != nil {
		return cleaned
	}
	if h.cfg.DeviceTTL > 0 {
		if n, err := h.cfg.Repo.DeleteIdleUsers(ctx, h.cfg.DeviceTTL); err != nil {
			slog.Error("TTL worker failed to delete idle devices", "error", err)
		} else if n > 0 {
			slog.Info("TTL worker deleted idle devices", "count", n)
		}
	}
	if h.cfg.AnalysisRetention > 0 {
		if n, err := h.cfg.Repo.CleanupAnalyses(ctx, h.cfg.AnalysisRetention); err != nil {
			slog.Error("TTL worker failed to cleanup analysis runs", "error", err)
		} else if n > 0 {
			slog.Info("TTL worker cleaned up analysis runs", "count", n)
		}
	}
	return cleaned
}
