// Package maintenance runs the credential retention policy.
package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

const CleanupPath = "/internal/maintenance/cleanup"

// maxBatches bounds one purge run.
const maxBatches = 100

// Purger deletes credentials that can no longer be renewed.
type Purger interface {
	PurgeTerminal(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// Cleaner removes terminal credentials whose token expired more than
// retention ago.
type Cleaner struct {
	purger    Purger
	retention time.Duration
	batch     int
	now       func() time.Time
	logger    *zap.SugaredLogger
}

func NewCleaner(purger Purger, retentionDays, batch int, logger *zap.SugaredLogger) *Cleaner {
	return &Cleaner{
		purger:    purger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		batch:     batch,
		now:       time.Now,
		logger:    logger,
	}
}

// Purge deletes batches until a short batch shows nothing is left.
func (c *Cleaner) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention)
	var total int64
	for range maxBatches {
		n, err := c.purger.PurgeTerminal(ctx, cutoff, c.batch)
		if err != nil {
			return total, err
		}
		total += n
		metrics.CredentialsPurged.Add(float64(n))
		if n < int64(c.batch) {
			break
		}
	}
	c.logger.Infow("credential purge finished", "purged", total, "cutoff", cutoff)
	return total, nil
}

// Run purges every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Purge(ctx); err != nil {
				c.logger.Warnw("credential purge failed", "err", err)
			}
		}
	}
}

// Handler exposes Purge to an external scheduler holding the cron secret.
type Handler struct {
	cleaner *Cleaner
	secret  string
	logger  *zap.SugaredLogger
}

func NewHandler(cleaner *Cleaner, secret string, logger *zap.SugaredLogger) *Handler {
	return &Handler{cleaner: cleaner, secret: secret, logger: logger}
}

// Cleanup answers 404 when no secret is configured.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		http.NotFound(w, r)
		return
	}
	token, err := guard.BearerToken(r)
	if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	n, err := h.cleaner.Purge(r.Context())
	if err != nil {
		h.logger.Errorw("cleanup failed", "err", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "credential_store_unavailable", "purged": n})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
