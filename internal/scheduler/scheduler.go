// Package scheduler runs the auction closing sweep on a fixed interval. Each
// run first takes a named lease so replicas never sweep at the same time.
package scheduler

import (
	"context"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// LeaseName identifies the sweep lease in the LeaseStore
const LeaseName = "close-auctions"

// Sweeper closes expired auctions
type Sweeper interface {
	CloseAuctions(ctx context.Context) (bidding.SweepReport, error)
}

// Scheduler triggers a Sweeper periodically
type Scheduler struct {
	sweeper  Sweeper
	leases   repository.LeaseStore
	owner    string
	interval time.Duration
	leaseTTL time.Duration
	now      func() time.Time
}

// New creates a scheduler. owner identifies this process in the lease table.
func New(sweeper Sweeper, leases repository.LeaseStore, interval, leaseTTL time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		leases:   leases,
		owner:    utils.GenerateID(),
		interval: interval,
		leaseTTL: leaseTTL,
		now:      time.Now,
	}
}

// Run sweeps once per interval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("auction sweep scheduled", map[string]any{"interval": s.interval.String(), "owner": s.owner})
	for {
		select {
		case <-ctx.Done():
			utils.Info("auction sweep stopped", nil)
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if the lease can be taken. It reports whether the
// sweep ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	acquired, err := s.leases.AcquireLease(ctx, LeaseName, s.owner, s.leaseTTL, s.now().UTC())
	if err != nil {
		utils.Error("failed to acquire sweep lease", map[string]any{"error": err.Error()})
		return false
	}
	if !acquired {
		utils.Debug("sweep lease held elsewhere, skipping run", map[string]any{"owner": s.owner})
		return false
	}
	defer func() {
		if err := s.leases.ReleaseLease(context.WithoutCancel(ctx), LeaseName, s.owner); err != nil {
			utils.Warn("failed to release sweep lease", map[string]any{"error": err.Error()})
		}
	}()

	started := s.now()
	report, err := s.sweeper.CloseAuctions(ctx)
	if err != nil {
		utils.Error("auction sweep failed", map[string]any{"error": err.Error()})
		return true
	}

	fields := map[string]any{
		"examined": report.Examined,
		"closed":   report.Closed,
		"notified": report.Notified,
		"failed":   report.Failed,
		"duration": s.now().Sub(started).String(),
	}
	if report.Examined == 0 {
		utils.Debug("no auctions to close", fields)
	} else {
		utils.Info("auction sweep completed", fields)
	}
	return true
}
