package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
)

// StatusHandler handles GET /jobs/expiry.
func StatusHandler(s *Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	}
}

// RunHandler handles POST /jobs/expiry/run. It sweeps synchronously and
// returns the run result.
func RunHandler(s *Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.RunOnce(r.Context())
		switch {
		case errors.Is(err, ErrSweepInProgress):
			writeError(w, http.StatusConflict, err.Error(), "SWEEP_IN_PROGRESS")
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, status)
		default:
			writeJSON(w, http.StatusOK, status)
		}
	}
}

// Router mounts the sweeper routes. A nil authorizer disables checks.
func Router(s *Sweeper, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()
	r.Get("/expiry", authz.Wrap(authorizer, authz.ResourceJobs, authz.VerbGet, StatusHandler(s)))
	r.Post("/expiry/run", authz.Wrap(authorizer, authz.ResourceJobs, authz.VerbRun, RunHandler(s)))
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
