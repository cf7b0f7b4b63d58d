// Package sweep re-verifies anchored fingerprints in the background so
// silent store tampering surfaces without anyone calling verify.
package sweep

import (
	"context"
	"time"

	"casechain.org/internal/audit"
	"casechain.org/internal/evidence"
	"casechain.org/internal/obs"
)

// Verifier is the slice of the evidence service the sweep depends on.
type Verifier interface {
	VerifyAnchored(ctx context.Context) ([]evidence.Verification, error)
}

// Sweeper periodically re-checks every anchored evidence record against
// the ledger.
type Sweeper struct {
	verifier Verifier
	interval time.Duration
}

// New creates a sweeper. Intervals below one second are clamped to the
// default of five minutes.
func New(verifier Verifier, interval time.Duration) *Sweeper {
	if interval < time.Second {
		interval = 5 * time.Minute
	}
	return &Sweeper{verifier: verifier, interval: interval}
}

// Start launches the sweep loop and returns a stop function. The first
// pass runs after one full interval, not at startup, so the API is
// serving before the ledger gets hit.
func (s *Sweeper) Start() func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Pass(ctx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Pass runs one full verification sweep and reports what it found.
func (s *Sweeper) Pass(ctx context.Context) Summary {
	results, err := s.verifier.VerifyAnchored(ctx)
	if err != nil && ctx.Err() == nil {
		obs.Warn("integrity sweep failed", map[string]any{"error": err.Error()})
	}
	var sum Summary
	for _, v := range results {
		sum.Checked++
		switch v.Result {
		case evidence.VerifyMatch:
			sum.Matched++
		case evidence.VerifyMismatch:
			sum.Mismatched++
			audit.LogEvent(ctx, "evidence.integrity_mismatch", map[string]any{
				"evidence_id": v.EvidenceID,
				"tx_ref":      string(v.TxRef),
				"local":       string(v.Local),
				"ledger":      string(v.Ledger),
			})
		case evidence.VerifyUnavailable:
			sum.Unavailable++
		}
	}
	if sum.Mismatched > 0 {
		obs.Warn("integrity sweep found mismatches", map[string]any{
			"checked": sum.Checked, "mismatched": sum.Mismatched,
		})
	}
	return sum
}

// Summary counts one sweep pass by verdict.
type Summary struct {
	Checked     int
	Matched     int
	Mismatched  int
	Unavailable int
}
