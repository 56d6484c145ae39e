// Package session tracks players across their two independent halves, the
// realtime UI session and the voice presence, and owns the lifecycle of
// activated simulations: panel claims, host configuration and interface
// gateway control.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/railvoice/roclink/internal/config"
	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/phone"
	"github.com/railvoice/roclink/internal/topology"
	"github.com/railvoice/roclink/internal/transport"
	"github.com/railvoice/roclink/internal/voice"
)

// Sentinel errors for registry operations.
var (
	ErrPlayerNotFound    = errors.New("player not found")
	ErrSimNotActive      = errors.New("simulation is not active")
	ErrSimAlreadyActive  = errors.New("simulation is already active")
	ErrPanelNotFound     = errors.New("panel not found")
	ErrPanelTaken        = errors.New("panel is already claimed")
	ErrConnectionsClosed = errors.New("simulation is not accepting connections")
	ErrHostDisabled      = errors.New("host is not enabled")
	ErrNoEncryptor       = errors.New("credential encryption is not configured")
)

// GatewayManager drives interface gateway feed clients. Implemented by the
// feed manager; wired after construction to break the dependency cycle.
type GatewayManager interface {
	CreateClient(host model.Host)
	ActivateClient(ctx context.Context, simID string)
	DeactivateClient(simID string)
	RemoveClient(simID string)
}

// CallEnder hangs up a player's ongoing calls. Implemented by the call
// manager; wired after construction to break the dependency cycle.
type CallEnder interface {
	EndCallsForPlayer(ctx context.Context, playerID string)
}

// TrainRemover forgets tracked trains for a simulation. Implemented by the
// train directory; wired after construction like the other seams.
type TrainRemover interface {
	RemoveForSim(simID string)
}

// PreservedState is what survives a host deactivation so a re-activation
// can restore the running game: panel claims, the clock, and the join gate.
type PreservedState struct {
	Panels          map[string]string
	Clock           model.ClockData
	ConnectionsOpen bool
}

// AdminStatus is the privileged whole-system view.
type AdminStatus struct {
	Players []PlayerView           `json:"players"`
	Phones  []model.PhoneAdminView `json:"phones"`
	Hosts   []model.HostView       `json:"hosts"`
}

// Registry owns all players and active simulations.
type Registry struct {
	store     *config.Store
	topo      *topology.Store
	phones    *phone.Manager
	voice     voice.Directory
	encryptor *config.Encryptor
	logger    *slog.Logger

	mu        sync.Mutex
	file      *config.File
	players   map[string]*Player
	sims      []*model.Simulation
	preserved map[string]PreservedState
	gateways  GatewayManager
	calls     CallEnder
	trains    TrainRemover
}

// NewRegistry creates an empty registry. The encryptor may be nil, in
// which case gateway credentials cannot be set.
func NewRegistry(store *config.Store, topo *topology.Store, phones *phone.Manager, vd voice.Directory, encryptor *config.Encryptor, logger *slog.Logger) *Registry {
	return &Registry{
		store:     store,
		topo:      topo,
		phones:    phones,
		voice:     vd,
		encryptor: encryptor,
		logger:    logger,
		players:   make(map[string]*Player),
		preserved: make(map[string]PreservedState),
	}
}

// SetGateways wires the feed client manager.
func (r *Registry) SetGateways(g GatewayManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways = g
}

// SetCallEnder wires the call manager so voice loss can hang up the
// player's ongoing calls.
func (r *Registry) SetCallEnder(c CallEnder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = c
}

// SetTrains wires the train directory so deactivating a host also forgets
// its tracked trains.
func (r *Registry) SetTrains(t TrainRemover) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trains = t
}

// Load reads the persisted configuration and activates every enabled host.
// Interface gateways always boot disabled; an operator re-enables them.
func (r *Registry) Load(ctx context.Context) error {
	file, err := r.store.Load()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.file = file
	gateways := r.gateways
	r.mu.Unlock()

	for i := range file.Games {
		host := &file.Games[i]
		if gateways != nil {
			gateways.CreateClient(*host)
		}
		if !host.Enabled {
			continue
		}
		if err := r.activateHost(ctx, host); err != nil {
			r.logger.Error("activating host at boot",
				slog.String("sim", host.Sim), slog.String("error", err.Error()))
		}
	}
	return nil
}

// ---- player lifecycle ----

// RegisterSession attaches a UI session to a player. The player must be in
// voice for the session to be fully authenticated; otherwise it is told to
// join voice first and kept as a prospect.
func (r *Registry) RegisterSession(ctx context.Context, s transport.Session, playerID string) {
	channelID, err := r.voice.CurrentChannel(ctx, playerID)
	if err != nil {
		r.logger.Warn("voice presence lookup failed",
			slog.String("player", playerID), slog.String("error", err.Error()))
	}

	r.mu.Lock()
	player := r.players[playerID]
	if player == nil {
		player = &Player{ID: playerID}
		r.players[playerID] = player
	}
	player.Session = s
	player.IsConnected = true
	if channelID != "" && !player.InCall {
		player.VoiceChannelID = channelID
	}
	inVoice := player.InVoice()
	r.mu.Unlock()

	if !inVoice {
		s.Send(transport.EventSessionAuthenticated, transport.SessionAuthenticated{
			OK:    false,
			Error: transport.ErrCodeVoiceDisconnected,
		})
		return
	}

	s.Send(transport.EventSessionAuthenticated, transport.SessionAuthenticated{OK: true})
	s.Send(transport.EventGameStateChanged, r.GameState())
	r.phones.PushPhonebooks(playerID)
}

// RegisterVoice records a player's voice presence. Moves into call
// channels do not overwrite the stored channel; that is where the player
// returns when the call ends.
func (r *Registry) RegisterVoice(playerID, channelID string) {
	r.mu.Lock()
	player := r.players[playerID]
	if player == nil {
		player = &Player{ID: playerID}
		r.players[playerID] = player
	}
	if !player.InCall {
		player.VoiceChannelID = channelID
	}
	r.mu.Unlock()
}

// UnregisterVoice handles a player leaving voice entirely. Their panels
// and phones are released; a still-connected session is told to rejoin.
func (r *Registry) UnregisterVoice(playerID string) {
	r.mu.Lock()
	player := r.players[playerID]
	if player == nil {
		r.mu.Unlock()
		return
	}
	player.VoiceChannelID = ""
	player.InCall = false
	connected := player.IsConnected
	if !connected {
		delete(r.players, playerID)
	}
	r.releasePanelsLocked(playerID)
	calls := r.calls
	r.mu.Unlock()

	// Hang up before the phones are unassigned; call membership is
	// resolved through phone ownership.
	if calls != nil {
		calls.EndCallsForPlayer(context.Background(), playerID)
	}
	r.phones.UnassignAllForOwner(playerID)
	if connected {
		r.Send(playerID, transport.EventSessionAuthenticated, transport.SessionAuthenticated{
			OK:    false,
			Error: transport.ErrCodeVoiceDisconnected,
		})
	}
	r.BroadcastGameState()
}

// SessionDisconnected detaches a UI session. The player survives as long
// as they remain in voice, so a reconnecting session finds their claims
// intact. Voice presence is asked for fresh; the cached channel may be
// stale if the player left voice without us hearing about it.
func (r *Registry) SessionDisconnected(ctx context.Context, sessionID string) {
	r.mu.Lock()
	var player *Player
	for _, p := range r.players {
		if p.Session != nil && p.Session.ID() == sessionID {
			player = p
			break
		}
	}
	if player == nil {
		r.mu.Unlock()
		return
	}
	player.Session = nil
	player.IsConnected = false
	playerID := player.ID
	cached := player.VoiceChannelID
	r.mu.Unlock()

	channelID, err := r.voice.CurrentChannel(ctx, playerID)
	if err != nil {
		r.logger.Warn("voice presence lookup failed",
			slog.String("player", playerID), slog.String("error", err.Error()))
		channelID = cached
	}

	r.mu.Lock()
	player = r.players[playerID]
	if player == nil || player.IsConnected {
		r.mu.Unlock()
		return
	}
	removed := false
	if !player.InCall {
		player.VoiceChannelID = channelID
	}
	if !player.InVoice() {
		delete(r.players, playerID)
		r.releasePanelsLocked(playerID)
		removed = true
	}
	r.mu.Unlock()

	if removed {
		r.phones.UnassignAllForOwner(playerID)
		r.BroadcastGameState()
	}
}

// releasePanelsLocked clears every panel claim held by the player.
// Callers must hold r.mu.
func (r *Registry) releasePanelsLocked(playerID string) {
	for _, sim := range r.sims {
		for _, panel := range sim.Panels {
			if panel.Player == playerID {
				panel.Player = ""
			}
		}
	}
}

// ---- panels ----

// ClaimPanel gives a panel and its phone to a player. The simulation must
// be accepting connections unless the player is a superuser.
func (r *Registry) ClaimPanel(playerID, simID, panelID string) error {
	r.mu.Lock()
	sim := r.simLocked(simID)
	if sim == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSimNotActive, simID)
	}
	if !sim.ConnectionsOpen && !r.isSuperUserLocked(playerID) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectionsClosed, simID)
	}
	panel := sim.Panel(panelID)
	if panel == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrPanelNotFound, simID, panelID)
	}
	if panel.Player != "" && panel.Player != playerID {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrPanelTaken, simID, panelID)
	}
	panel.Player = playerID
	phoneID := panel.PhoneID
	r.mu.Unlock()

	if err := r.phones.Assign(phoneID, playerID); err != nil {
		r.logger.Error("assigning panel phone",
			slog.String("phone", phoneID), slog.String("error", err.Error()))
	}
	r.logger.Info("panel claimed",
		slog.String("player", playerID),
		slog.String("sim", simID),
		slog.String("panel", panelID))
	r.BroadcastGameState()
	return nil
}

// ReleasePanel returns a panel and its phone.
func (r *Registry) ReleasePanel(playerID, simID, panelID string) error {
	r.mu.Lock()
	sim := r.simLocked(simID)
	if sim == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSimNotActive, simID)
	}
	panel := sim.Panel(panelID)
	if panel == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrPanelNotFound, simID, panelID)
	}
	if panel.Player != playerID {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrPanelNotFound, simID, panelID)
	}
	panel.Player = ""
	phoneID := panel.PhoneID
	r.mu.Unlock()

	if err := r.phones.Unassign(phoneID); err != nil {
		r.logger.Error("unassigning panel phone",
			slog.String("phone", phoneID), slog.String("error", err.Error()))
	}
	r.BroadcastGameState()
	return nil
}

// ---- simulation lifecycle ----

func (r *Registry) activateHost(ctx context.Context, host *model.Host) error {
	r.mu.Lock()
	if r.simLocked(host.Sim) != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSimAlreadyActive, host.Sim)
	}
	r.mu.Unlock()

	sim, err := r.topo.Load(host.Sim)
	if err != nil {
		return err
	}
	sim.Enabled = true
	sim.Channel = host.Channel
	sim.ConnectionsOpen = true

	r.phones.GeneratePhonesForSim(sim)

	r.mu.Lock()
	var reclaims map[string]string
	if state, ok := r.preserved[sim.ID]; ok {
		sim.Clock = state.Clock
		sim.ConnectionsOpen = state.ConnectionsOpen
		reclaims = state.Panels
		delete(r.preserved, sim.ID)
	}
	for panelID, playerID := range reclaims {
		if panel := sim.Panel(panelID); panel != nil && r.players[playerID] != nil {
			panel.Player = playerID
		}
	}
	r.sims = append(r.sims, sim)
	gateways := r.gateways
	r.mu.Unlock()

	// Restore phone assignments for reclaimed panels.
	for panelID, playerID := range reclaims {
		if panel := sim.Panel(panelID); panel != nil && panel.Player == playerID {
			if err := r.phones.Assign(panel.PhoneID, playerID); err != nil {
				r.logger.Warn("restoring panel phone",
					slog.String("phone", panel.PhoneID), slog.String("error", err.Error()))
			}
		}
	}

	if gateways != nil && host.InterfaceGateway.Enabled {
		gateways.ActivateClient(ctx, host.Sim)
	}

	r.logger.Info("simulation activated",
		slog.String("sim", sim.ID), slog.String("channel", sim.Channel))
	r.BroadcastGameState()
	return nil
}

func (r *Registry) deactivateHost(simID string) error {
	r.mu.Lock()
	sim := r.simLocked(simID)
	if sim == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSimNotActive, simID)
	}

	state := PreservedState{
		Panels:          make(map[string]string),
		Clock:           sim.Clock,
		ConnectionsOpen: sim.ConnectionsOpen,
	}
	var owners []string
	for _, panel := range sim.Panels {
		if panel.Player != "" {
			state.Panels[panel.ID] = panel.Player
			owners = append(owners, panel.Player)
			panel.Player = ""
		}
	}
	r.preserved[simID] = state

	for i, s := range r.sims {
		if s.ID == simID {
			r.sims = append(r.sims[:i], r.sims[i+1:]...)
			break
		}
	}
	gateways := r.gateways
	trains := r.trains
	r.mu.Unlock()

	if gateways != nil {
		gateways.DeactivateClient(simID)
	}
	// Tracked trains go with the sim's phones; a fresh feed report after
	// re-activation recreates both.
	if trains != nil {
		trains.RemoveForSim(simID)
	}
	r.phones.RemoveSim(simID)
	for _, owner := range owners {
		r.phones.PushPhonebooks(owner)
	}

	r.logger.Info("simulation deactivated", slog.String("sim", simID))
	r.BroadcastGameState()
	return nil
}

// UpdateSimClock records a clock report from the feed and republishes the
// game state.
func (r *Registry) UpdateSimClock(simID string, clock model.ClockData) {
	r.mu.Lock()
	sim := r.simLocked(simID)
	if sim == nil {
		r.mu.Unlock()
		return
	}
	sim.Clock = clock
	r.mu.Unlock()
	r.BroadcastGameState()
}

// SetConnectionsOpen flips a simulation's join gate.
func (r *Registry) SetConnectionsOpen(simID string, open bool) error {
	r.mu.Lock()
	sim := r.simLocked(simID)
	if sim == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSimNotActive, simID)
	}
	sim.ConnectionsOpen = open
	r.mu.Unlock()
	r.BroadcastGameState()
	return nil
}

// ActiveSim returns an active simulation by id.
func (r *Registry) ActiveSim(simID string) (*model.Simulation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sim := r.simLocked(simID)
	return sim, sim != nil
}

// ---- host configuration ----

// AddHost persists a new host and activates it if enabled.
func (r *Registry) AddHost(ctx context.Context, h model.Host) error {
	file, err := r.mutateFile(func(f *config.File) error { return f.AddHost(h) })
	if err != nil {
		return err
	}

	r.mu.Lock()
	gateways := r.gateways
	r.mu.Unlock()
	if gateways != nil {
		gateways.CreateClient(h)
	}

	if h.Enabled {
		if err := r.activateHost(ctx, file.Host(h.Sim)); err != nil {
			// Roll the stored enabled flag back so config matches reality.
			if _, rbErr := r.mutateFile(func(f *config.File) error {
				return f.SetHostEnabled(h.Sim, false)
			}); rbErr != nil {
				r.logger.Error("rolling back host enable",
					slog.String("sim", h.Sim), slog.String("error", rbErr.Error()))
			}
			return err
		}
	}
	return nil
}

// UpdateHost persists changes to a host. A running simulation keeps its
// panels and players; only the stored configuration changes until the host
// is next cycled.
func (r *Registry) UpdateHost(ctx context.Context, h model.Host) error {
	if _, err := r.mutateFile(func(f *config.File) error { return f.UpdateHost(h) }); err != nil {
		return err
	}

	r.mu.Lock()
	if sim := r.simLocked(h.Sim); sim != nil {
		sim.Channel = h.Channel
	}
	r.mu.Unlock()
	r.BroadcastGameState()
	return nil
}

// DeleteHost deactivates and removes a host.
func (r *Registry) DeleteHost(simID string) error {
	if _, ok := r.ActiveSim(simID); ok {
		if err := r.deactivateHost(simID); err != nil {
			return err
		}
	}
	if _, err := r.mutateFile(func(f *config.File) error { return f.RemoveHost(simID) }); err != nil {
		return err
	}

	r.mu.Lock()
	gateways := r.gateways
	delete(r.preserved, simID)
	r.mu.Unlock()
	if gateways != nil {
		gateways.RemoveClient(simID)
	}
	return nil
}

// EnableHost persists the enable and activates the simulation, rolling the
// flag back if activation fails.
func (r *Registry) EnableHost(ctx context.Context, simID string) error {
	file, err := r.mutateFile(func(f *config.File) error { return f.SetHostEnabled(simID, true) })
	if err != nil {
		return err
	}
	if err := r.activateHost(ctx, file.Host(simID)); err != nil {
		if _, rbErr := r.mutateFile(func(f *config.File) error {
			return f.SetHostEnabled(simID, false)
		}); rbErr != nil {
			r.logger.Error("rolling back host enable",
				slog.String("sim", simID), slog.String("error", rbErr.Error()))
		}
		return err
	}
	return nil
}

// DisableHost shuts the gateway down first, then persists the disable and
// deactivates the simulation.
func (r *Registry) DisableHost(simID string) error {
	r.mu.Lock()
	gateways := r.gateways
	r.mu.Unlock()
	if gateways != nil {
		gateways.DeactivateClient(simID)
	}

	if _, err := r.mutateFile(func(f *config.File) error { return f.SetHostEnabled(simID, false) }); err != nil {
		return err
	}
	if _, ok := r.ActiveSim(simID); ok {
		return r.deactivateHost(simID)
	}
	return nil
}

// ---- interface gateway control ----

// EnableInterfaceGateway starts the feed client for an enabled host.
func (r *Registry) EnableInterfaceGateway(ctx context.Context, simID string) error {
	file, err := r.mutateFile(func(f *config.File) error {
		h := f.Host(simID)
		if h == nil {
			return fmt.Errorf("%w: %s", config.ErrHostNotFound, simID)
		}
		if !h.Enabled {
			return fmt.Errorf("%w: %s", ErrHostDisabled, simID)
		}
		h.EnableGateway()
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	gateways := r.gateways
	r.mu.Unlock()
	if gateways != nil {
		gateways.CreateClient(*file.Host(simID))
		gateways.ActivateClient(ctx, simID)
	}
	return nil
}

// DisableInterfaceGateway stops the feed client.
func (r *Registry) DisableInterfaceGateway(simID string) error {
	r.mu.Lock()
	gateways := r.gateways
	r.mu.Unlock()
	if gateways != nil {
		gateways.DeactivateClient(simID)
	}

	_, err := r.mutateFile(func(f *config.File) error {
		h := f.Host(simID)
		if h == nil {
			return fmt.Errorf("%w: %s", config.ErrHostNotFound, simID)
		}
		h.DisableGateway()
		return nil
	})
	return err
}

// SetGatewayCredentials encrypts and stores feed login credentials.
func (r *Registry) SetGatewayCredentials(simID, username, password string) error {
	if r.encryptor == nil {
		return ErrNoEncryptor
	}
	encrypted, err := r.encryptor.Encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypting gateway password: %w", err)
	}

	_, err = r.mutateFile(func(f *config.File) error {
		h := f.Host(simID)
		if h == nil {
			return fmt.Errorf("%w: %s", config.ErrHostNotFound, simID)
		}
		h.InterfaceGateway.Username = username
		h.InterfaceGateway.EncryptedPassword = encrypted
		return nil
	})
	return err
}

// GatewayCredentials returns the decrypted feed login for a host.
func (r *Registry) GatewayCredentials(simID string) (username, password string, err error) {
	r.mu.Lock()
	host := r.file.Host(simID)
	r.mu.Unlock()
	if host == nil {
		return "", "", fmt.Errorf("%w: %s", config.ErrHostNotFound, simID)
	}
	if !host.InterfaceGateway.HasCredentials() {
		return "", "", nil
	}
	if r.encryptor == nil {
		return "", "", ErrNoEncryptor
	}
	password, err = r.encryptor.Decrypt(host.InterfaceGateway.EncryptedPassword)
	if err != nil {
		return "", "", fmt.Errorf("decrypting gateway password: %w", err)
	}
	return host.InterfaceGateway.Username, password, nil
}

// SetGatewayState records a feed client's connection state and pushes the
// admin view. Runtime state only; it is never persisted.
func (r *Registry) SetGatewayState(simID string, state model.ConnectionState, errorMessage string) {
	r.mu.Lock()
	if host := r.file.Host(simID); host != nil {
		host.SetGatewayState(state, errorMessage)
	}
	r.mu.Unlock()
	r.BroadcastAdminStatus()
}

// GatewayHost returns the stored host for a feed client.
func (r *Registry) GatewayHost(simID string) (model.Host, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if host := r.file.Host(simID); host != nil {
		return *host, true
	}
	return model.Host{}, false
}

// mutateFile applies a mutation to a copy of the config file, persists it,
// and swaps it in. The on-disk file and the in-memory view never diverge.
func (r *Registry) mutateFile(mutate func(*config.File) error) (*config.File, error) {
	r.mu.Lock()
	clone := *r.file
	clone.Games = append([]model.Host(nil), r.file.Games...)
	r.mu.Unlock()

	if err := mutate(&clone); err != nil {
		return nil, err
	}
	if err := r.store.Save(&clone); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.file = &clone
	r.mu.Unlock()
	return &clone, nil
}

// ---- views and notifications ----

// GameState returns the active simulations as sent to clients.
func (r *Registry) GameState() []*model.Simulation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Simulation(nil), r.sims...)
}

// HostState returns the client-safe view of every configured host.
func (r *Registry) HostState() []model.HostView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.HostView, len(r.file.Games))
	for i := range r.file.Games {
		out[i] = r.file.Games[i].ClientView()
	}
	return out
}

// Status returns the privileged whole-system view.
func (r *Registry) Status() AdminStatus {
	r.mu.Lock()
	players := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.View())
	}
	hosts := make([]model.HostView, len(r.file.Games))
	for i := range r.file.Games {
		hosts[i] = r.file.Games[i].ClientView()
	}
	r.mu.Unlock()

	return AdminStatus{
		Players: players,
		Phones:  r.phones.AllPhones(),
		Hosts:   hosts,
	}
}

// BroadcastGameState pushes the current game state to every connected
// session.
func (r *Registry) BroadcastGameState() {
	state := r.GameState()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		p.Send(transport.EventGameStateChanged, state)
	}
}

// BroadcastAdminStatus pushes the admin view to connected superusers.
func (r *Registry) BroadcastAdminStatus() {
	status := r.Status()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if r.isSuperUserLocked(p.ID) {
			p.Send(transport.EventAdminStatusChanged, status)
		}
	}
}

// IsSuperUser reports whether the player is a configured superuser.
func (r *Registry) IsSuperUser(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isSuperUserLocked(playerID)
}

func (r *Registry) isSuperUserLocked(playerID string) bool {
	if r.file == nil {
		return false
	}
	for _, id := range r.file.SuperUsers {
		if id == playerID {
			return true
		}
	}
	return false
}

// ---- voice housekeeping ----

// MovePlayerToLobby returns a player to the configured lobby channel.
func (r *Registry) MovePlayerToLobby(ctx context.Context, playerID string) bool {
	return r.movePlayer(ctx, playerID, r.lobbyChannel())
}

// MarkAFK parks a player in the configured AFK channel.
func (r *Registry) MarkAFK(ctx context.Context, playerID string) bool {
	return r.movePlayer(ctx, playerID, r.afkChannel())
}

func (r *Registry) movePlayer(ctx context.Context, playerID, channelID string) bool {
	if channelID == "" {
		return false
	}
	if !r.voice.MoveToChannel(ctx, playerID, channelID) {
		return false
	}
	r.RegisterVoice(playerID, channelID)
	return true
}

func (r *Registry) lobbyChannel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.file.Channels.Lobby
}

func (r *Registry) afkChannel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.file.Channels.AFK
}

// ---- interfaces for collaborators ----

// VoiceChannel returns a player's pre-call voice channel.
func (r *Registry) VoiceChannel(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	if p == nil || p.VoiceChannelID == "" {
		return "", false
	}
	return p.VoiceChannelID, true
}

// SetInCall flags a player's call state.
func (r *Registry) SetInCall(playerID string, inCall bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.players[playerID]; p != nil {
		p.InCall = inCall
	}
}

// Send delivers an event to a player's session.
func (r *Registry) Send(playerID, event string, payload any) {
	r.mu.Lock()
	p := r.players[playerID]
	r.mu.Unlock()
	if p == nil {
		return
	}
	p.Send(event, payload)
}

// SendPhonebook delivers a phonebook update, satisfying the phone
// directory's notifier.
func (r *Registry) SendPhonebook(playerID string, books []model.PhoneBook) {
	r.Send(playerID, transport.EventPhonebookChanged, transport.PlayerPhonesChanged{Phones: books})
}

// PlayerCounts reports player totals for status views and metrics.
func (r *Registry) PlayerCounts() (total, connected, inVoice, inCall int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.players)
	for _, p := range r.players {
		if p.IsConnected {
			connected++
		}
		if p.InVoice() {
			inVoice++
		}
		if p.InCall {
			inCall++
		}
	}
	return total, connected, inVoice, inCall
}

// ActiveSimulationCount reports how many simulations are running.
func (r *Registry) ActiveSimulationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sims)
}

// GatewayStates reports the connection state of every configured gateway.
func (r *Registry) GatewayStates() map[string]model.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.ConnectionState)
	if r.file == nil {
		return out
	}
	for i := range r.file.Games {
		h := &r.file.Games[i]
		state := h.InterfaceGateway.ConnectionState
		if state == "" {
			state = model.GatewayDisconnected
		}
		out[h.Sim] = state
	}
	return out
}

func (r *Registry) simLocked(simID string) *model.Simulation {
	for _, sim := range r.sims {
		if sim.ID == simID {
			return sim
		}
	}
	return nil
}
