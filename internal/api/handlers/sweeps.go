package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/scheduler"
)

// SweepInfo describes a registered sweep.
type SweepInfo struct {
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// ListSweeps returns the registered sweeps and, when scheduled, their next run. Staff only.
func ListSweeps(runner *scheduler.Runner, sched *scheduler.SweepScheduler) http.HandlerFunc {
	return middleware.RequireStaff(func(w http.ResponseWriter, r *http.Request) {
		names := runner.Names()
		out := make([]SweepInfo, 0, len(names))
		for _, name := range names {
			info := SweepInfo{Name: name}
			if sched != nil {
				if next := sched.NextRun(name); !next.IsZero() {
					info.NextRun = &next
				}
			}
			out = append(out, info)
		}
		middleware.WriteJSON(w, http.StatusOK, out)
	})
}

// RunSweep runs a sweep now and returns its batch result. Staff only.
func RunSweep(runner *scheduler.Runner) http.HandlerFunc {
	return middleware.RequireStaff(func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.Run(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	})
}
