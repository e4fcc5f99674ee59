package web

import (
	"context"
	"net/http"

	"github.com/topi314/clubhouse/server/clubs"
)

type sweepResponse struct {
	clubs.SweepReport
	Error string `json:"error,omitempty"`
}

// Sweep runs a reconciliation sweep, clients trigger it on login.
func (h *handler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	report := h.Server.Sweep(ctx)
	writeJSON(ctx, w, http.StatusOK, newSweepResponse(report))
}

func (h *handler) LastSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, ok := h.Server.LastSweep()
	if !ok {
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "no sweep has run yet"})
		return
	}
	writeJSON(ctx, w, http.StatusOK, newSweepResponse(report))
}

func newSweepResponse(report clubs.SweepReport) sweepResponse {
	rs := sweepResponse{SweepReport: report}
	if report.Err != nil {
		rs.Error = report.Err.Error()
	}
	return rs
}
