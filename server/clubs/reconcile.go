package clubs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/topi314/clubhouse/internal/tsync"
	"github.com/topi314/clubhouse/server/store"
)

type ReconcilerConfig struct {
	// Concurrency limits the number of member count writes in flight.
	Concurrency int
	// Every is the minimum interval between two writes, zero disables throttling.
	Every time.Duration
	Burst int
}

func NewReconciler(s store.Store, cfg ReconcilerConfig) *Reconciler {
	limit := rate.Inf
	if cfg.Every > 0 {
		limit = rate.Every(cfg.Every)
	}
	return &Reconciler{
		store:       s,
		concurrency: max(1, cfg.Concurrency),
		limiter:     rate.NewLimiter(limit, max(1, cfg.Burst)),
	}
}

// Reconciler recomputes every club's member count from the membership records and
// corrects drifted counts. It is convergent, not linearizable: memberships changing
// while a sweep runs may be missed until the next sweep.
type Reconciler struct {
	store       store.Store
	concurrency int
	limiter     *rate.Limiter
}

type CountFix struct {
	ClubID string `json:"clubId"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

type SweepReport struct {
	Clubs       int           `json:"clubs"`
	Memberships int           `json:"memberships"`
	Fixed       int           `json:"fixed"`
	Failed      int           `json:"failed"`
	Orphans     int           `json:"orphans"`
	Fixes       []CountFix    `json:"fixes"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

func (r SweepReport) String() string {
	return fmt.Sprintf("clubs=%d memberships=%d fixed=%d failed=%d orphans=%d duration=%s", r.Clubs, r.Memberships, r.Fixed, r.Failed, r.Orphans, r.Duration)
}

// Sweep never returns an error. Snapshot failures end the sweep and are reported in
// SweepReport.Err, failed writes are logged and counted.
func (r *Reconciler) Sweep(ctx context.Context) SweepReport {
	start := time.Now()
	report := r.sweep(ctx)
	report.Duration = time.Since(start)

	if report.Err != nil {
		slog.ErrorContext(ctx, "Failed to sweep member counts", slog.Any("err", report.Err))
		return report
	}
	slog.InfoContext(ctx, "Swept member counts",
		slog.Int("clubs", report.Clubs),
		slog.Int("memberships", report.Memberships),
		slog.Int("fixed", report.Fixed),
		slog.Int("failed", report.Failed),
		slog.Int("orphans", report.Orphans),
		slog.Duration("duration", report.Duration),
	)
	return report
}

func (r *Reconciler) sweep(ctx context.Context) SweepReport {
	report := SweepReport{Fixes: []CountFix{}}

	clubs, err := r.store.Query(ctx, store.CollectionClubs, store.Filter{})
	if err != nil {
		report.Err = fmt.Errorf("failed to read clubs: %w", err)
		return report
	}
	report.Clubs = len(clubs)

	memberships, err := r.store.Query(ctx, store.CollectionMemberships, store.Filter{})
	if err != nil {
		report.Err = fmt.Errorf("failed to read memberships: %w", err)
		return report
	}
	report.Memberships = len(memberships)

	counts := make(map[string]int, len(clubs))
	for _, node := range memberships {
		clubID, _ := node.Value[fieldClubID].(string)
		if clubID == "" {
			slog.WarnContext(ctx, "Skipping membership without club id", slog.String("path", node.Path.String()))
			continue
		}
		counts[clubID]++
	}

	var fixes []CountFix
	for _, node := range clubs {
		cached, ok := store.IntOK(node.Value, fieldMemberCount)
		actual := counts[node.Path.Key]
		delete(counts, node.Path.Key)
		// missing and malformed counts are rewritten even when they read as the true count
		if ok && cached == actual {
			continue
		}
		fixes = append(fixes, CountFix{ClubID: node.Path.Key, From: cached, To: actual})
	}

	for clubID, count := range counts {
		report.Orphans += count
		slog.WarnContext(ctx, "Found memberships of unknown club", slog.String("club_id", clubID), slog.Int("memberships", count))
	}

	eg, egCtx := tsync.ErrorGroupWithContext(ctx)
	eg.SetLimit(r.concurrency)
	for _, fix := range fixes {
		eg.Go(func() error {
			if err := r.limiter.Wait(egCtx); err != nil {
				return fmt.Errorf("failed to fix member count of club %s: %w", fix.ClubID, err)
			}
			if err := r.store.Update(egCtx, clubPath(fix.ClubID), map[string]any{fieldMemberCount: fix.To}); err != nil {
				return fmt.Errorf("failed to fix member count of club %s: %w", fix.ClubID, err)
			}
			return nil
		})
	}

	for i, fixErr := range eg.Wait() {
		if fixErr != nil {
			report.Failed++
			slog.WarnContext(ctx, "Failed to fix club member count", slog.Any("err", fixErr))
			continue
		}
		report.Fixes = append(report.Fixes, fixes[i])
	}
	report.Fixed = len(report.Fixes)
	return report
}
