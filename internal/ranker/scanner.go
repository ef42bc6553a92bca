package ranker

import (
	"context"
	"fmt"
	"time"
)

// RunInitialScan reconciles every current group member's rank against their
// eligibility, once at startup. Per-member failures are logged and counted;
// the scan continues to the next member. Only context cancellation or a
// failed member-list fetch aborts the scan.
func (r *Ranker) RunInitialScan(ctx context.Context) error {
	r.logScan.Infof("initiating group member scan")

	members, err := r.api.GetGroupMembers(ctx, r.cfg.GroupID)
	if err != nil {
		r.metrics.IncErrors()
		return fmt.Errorf("failed to fetch member list: %w", err)
	}
	r.logScan.Infof("scanning %d members", len(members))

	adjusted := 0
	for _, member := range members {
		if err := ctx.Err(); err != nil {
			return err
		}

		if eligible := r.ResolveEligibleRank(ctx, member.UserID); eligible > 0 {
			if r.assignRank(ctx, member.UserID, eligible, "Initial Scan") {
				adjusted++
			}
		}

		// Pacing between members to respect platform rate limits.
		if err := sleepCtx(ctx, r.cfg.MemberDelay); err != nil {
			return err
		}
	}

	r.logScan.Infof("initial scan complete: %d rank adjustments", adjusted)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
