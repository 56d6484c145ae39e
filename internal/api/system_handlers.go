package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/railvoice/roclink/internal/api/middleware"
)

// handleHealth returns a liveness response. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleLogin exchanges the shared admin token for a superuser JWT. The
// caller must name a player id that is on the superuser list.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "playerId and token are required")
		return
	}

	file := s.store.Cached()
	if file == nil || file.Token == "" {
		writeError(w, http.StatusServiceUnavailable, "admin login is not configured")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(file.Token)) != 1 {
		slog.Warn("admin login rejected", "player", req.PlayerID, "reason", "bad token")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !s.registry.IsSuperUser(req.PlayerID) {
		slog.Warn("admin login rejected", "player", req.PlayerID, "reason", "not a superuser")
		writeError(w, http.StatusForbidden, "not a superuser")
		return
	}

	token, expiresAt, err := middleware.GenerateAdminToken(s.jwtSecret, req.PlayerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("admin login", "player", req.PlayerID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// handleStatus returns the privileged whole-system view: every tracked
// player, phone and host.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Status())
}

// handleListSimulations lists the simulations available on disk, whether
// active or not.
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	sims, err := s.topo.Available()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sims)
}

// handleListBackups lists configuration backups, newest first.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.store.ListBackups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// handleRestoreBackup replaces the configuration file with a named backup.
// The restored host list takes effect on the next restart; live simulations
// keep running on their current configuration.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	file, err := s.store.Restore(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Warn("configuration restored from backup",
		"backup", name,
		"admin", middleware.AdminPlayerIDFromContext(r.Context()))

	views := make([]any, 0, len(file.Games))
	for i := range file.Games {
		views = append(views, file.Games[i].ClientView())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restored": name,
		"hosts":    views,
	})
}
