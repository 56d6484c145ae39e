package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/railvoice/roclink/internal/model"
)

// hostRequest is the admin payload for creating or updating a host. The
// gateway username rides along; the password is set through the dedicated
// credentials endpoint so it never appears in host listings or logs.
type hostRequest struct {
	Sim     string `json:"sim"`
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
	Channel string `json:"channel"`
	Enabled bool   `json:"enabled"`
	Gateway struct {
		Port    int  `json:"port"`
		Enabled bool `json:"enabled"`
	} `json:"interfaceGateway"`
}

func (req *hostRequest) toHost() model.Host {
	return model.Host{
		Sim:     req.Sim,
		Host:    req.Host,
		Port:    req.Port,
		Channel: req.Channel,
		Enabled: req.Enabled,
		InterfaceGateway: model.InterfaceGateway{
			Port:    req.Gateway.Port,
			Enabled: req.Gateway.Enabled,
		},
	}
}

// handleListHosts returns every configured host, secrets stripped.
func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

// handleAddHost creates a host and activates it when marked enabled.
func (s *Server) handleAddHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.registry.AddHost(r.Context(), req.toHost()); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.registry.HostState())
}

// handleUpdateHost updates a host's configuration. The sim id in the path
// wins over any sim in the body.
func (s *Server) handleUpdateHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h := req.toHost()
	h.Sim = chi.URLParam(r, "simID")

	if err := s.registry.UpdateHost(r.Context(), h); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

// handleDeleteHost deactivates and removes a host.
func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteHost(chi.URLParam(r, "simID")); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

// handleEnableHost activates a host's simulation, restoring any state
// preserved from an earlier deactivation.
func (s *Server) handleEnableHost(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.EnableHost(r.Context(), chi.URLParam(r, "simID")); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

// handleDisableHost deactivates a host's simulation, preserving panel claims
// and clock for a later re-enable.
func (s *Server) handleDisableHost(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DisableHost(chi.URLParam(r, "simID")); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

type connectionsRequest struct {
	Open bool `json:"open"`
}

// handleSetConnections opens or closes panel claiming on a live simulation.
// Superusers bypass the gate regardless.
func (s *Server) handleSetConnections(w http.ResponseWriter, r *http.Request) {
	var req connectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.registry.SetConnectionsOpen(chi.URLParam(r, "simID"), req.Open); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": req.Open})
}

// handleEnableGateway starts the train feed client for a host. The host
// itself must already be enabled.
func (s *Server) handleEnableGateway(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.EnableInterfaceGateway(r.Context(), chi.URLParam(r, "simID")); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

// handleDisableGateway stops the train feed client for a host.
func (s *Server) handleDisableGateway(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DisableInterfaceGateway(chi.URLParam(r, "simID")); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSetGatewayCredentials stores the feed login for a host. The
// password is encrypted before it is persisted and is never returned.
func (s *Server) handleSetGatewayCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := s.registry.SetGatewayCredentials(chi.URLParam(r, "simID"), req.Username, req.Password); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.HostState())
}
