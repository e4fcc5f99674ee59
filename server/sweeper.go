package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/topi314/clubhouse/server/clubs"
)

func (s *Server) reconcile() {
	if s.Cfg.Sweep.OnStart {
		s.doSweep()
	}
	if s.Cfg.Sweep.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(s.Cfg.Sweep.Interval))
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.doSweep()
		}
	}
}

func (s *Server) doSweep() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.Cfg.Sweep.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, time.Duration(s.Cfg.Sweep.Timeout))
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	s.Sweep(ctx)
}

// Sweep runs a reconciliation sweep. Concurrent calls are serialized, the notification
// is sent after the report was published.
func (s *Server) Sweep(ctx context.Context) clubs.SweepReport {
	report := s.sweep(ctx)

	if report.Fixed > 0 || report.Failed > 0 {
		s.SendNotification(ctx, sweepMessage(report, time.Now()))
	}
	return report
}

func (s *Server) sweep(ctx context.Context) clubs.SweepReport {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	report := s.Clubs.Reconciler.Sweep(ctx)

	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.lastReport = &report
	return report
}

// LastSweep returns the report of the most recent sweep, if any.
func (s *Server) LastSweep() (clubs.SweepReport, bool) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	if s.lastReport == nil {
		return clubs.SweepReport{}, false
	}
	return *s.lastReport, true
}

const maxNotifiedFixes = 10

func sweepMessage(report clubs.SweepReport, now time.Time) string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Member count sweep at %s fixed `%d` of `%d` clubs", discord.NewTimestamp(discord.TimestampStyleShortDateTime, now).String(), report.Fixed, report.Clubs)
	if report.Failed > 0 {
		_, _ = fmt.Fprintf(&sb, ", `%d` failed", report.Failed)
	}
	for i, fix := range report.Fixes {
		if i == maxNotifiedFixes {
			_, _ = fmt.Fprintf(&sb, "\n… and `%d` more", len(report.Fixes)-maxNotifiedFixes)
			break
		}
		_, _ = fmt.Fprintf(&sb, "\n- `%s`: %d → %d", fix.ClubID, fix.From, fix.To)
	}
	return sb.String()
}
