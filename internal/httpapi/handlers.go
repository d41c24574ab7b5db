package httpapi

import (
	"net/http"
	"time"

	"togglbot/internal/logging"
	"togglbot/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type userView struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	WorkspaceID string `json:"workspace_id"`
}

// handleUsers lists registered users without their API keys.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	creds, err := s.deps.Records.Credentials(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("list credentials")
		writeError(w, http.StatusInternalServerError, "store_error", "could not load users")
		return
	}

	users := make([]userView, 0, len(creds))
	for _, c := range creds {
		users = append(users, userView{UserID: c.UserID, UserName: c.UserName, WorkspaceID: c.WorkspaceID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Records.Usage(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("load usage")
		writeError(w, http.StatusInternalServerError, "store_error", "could not load usage")
		return
	}
	if usage == nil {
		usage = map[string]model.Usage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": usage})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "reminder scheduler not configured")
		return
	}

	res, err := s.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("manual sweep")
		writeError(w, http.StatusInternalServerError, "sweep_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}
