package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/railvoice/roclink/internal/config"
	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/phone"
	"github.com/railvoice/roclink/internal/topology"
	"github.com/railvoice/roclink/internal/transport"
	"github.com/railvoice/roclink/internal/voice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSession struct {
	id     string
	events []sentEvent
}

type sentEvent struct {
	event   string
	payload any
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(event string, payload any) {
	s.events = append(s.events, sentEvent{event, payload})
}

func (s *fakeSession) last(event string) (any, bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].event == event {
			return s.events[i].payload, true
		}
	}
	return nil, false
}

type fakeGateways struct {
	calls []string
}

func (g *fakeGateways) CreateClient(host model.Host) {
	g.calls = append(g.calls, "create:"+host.Sim)
}

func (g *fakeGateways) ActivateClient(_ context.Context, simID string) {
	g.calls = append(g.calls, "activate:"+simID)
}

func (g *fakeGateways) DeactivateClient(simID string) {
	g.calls = append(g.calls, "deactivate:"+simID)
}

func (g *fakeGateways) RemoveClient(simID string) {
	g.calls = append(g.calls, "remove:"+simID)
}

type fixture struct {
	registry *Registry
	voice    *voice.Static
	gateways *fakeGateways
	phones   *phone.Manager
}

const victoriaJSON = `{
	"name": "Victoria",
	"panels": [
		{"id": "north", "name": "North", "neighbours": [{"panelId": "south"}]},
		{"id": "south", "name": "South", "neighbours": [{"panelId": "north"}]}
	]
}`

const configJSON = `{
	"games": [
		{"sim": "victoria", "host": "sim.example.net", "channel": "vic-channel", "enabled": true,
		 "interfaceGateway": {"port": 51515}}
	],
	"channels": {"lobby": "lobby-channel", "afk": "afk-channel"},
	"callChannels": ["call-1", "call-2"],
	"superUsers": ["admin-1"]
}`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	simsDir := filepath.Join(dir, "simulations")
	if err := os.MkdirAll(simsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(simsDir, "victoria.json"), []byte(victoriaJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(configJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := testLogger()
	topo := topology.NewStore(simsDir, logger)
	phones := phone.NewManager(topo, logger)
	store := config.NewStore(configPath, logger)
	vd := voice.NewStatic([]string{"call-1", "call-2"})

	enc, err := config.NewEncryptor(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry(store, topo, phones, vd, enc, logger)
	phones.SetNotifier(registry)
	gateways := &fakeGateways{}
	registry.SetGateways(gateways)

	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &fixture{registry: registry, voice: vd, gateways: gateways, phones: phones}
}

// joinedPlayer puts a player in voice and attaches a session.
func (f *fixture) joinedPlayer(t *testing.T, playerID string) *fakeSession {
	t.Helper()
	f.voice.SetPresence(playerID, "vic-channel")
	f.registry.RegisterVoice(playerID, "vic-channel")
	s := &fakeSession{id: "sess-" + playerID}
	f.registry.RegisterSession(context.Background(), s, playerID)
	return s
}

func TestLoadActivatesEnabledHosts(t *testing.T) {
	f := newFixture(t)

	sim, ok := f.registry.ActiveSim("victoria")
	if !ok {
		t.Fatal("victoria not active after Load")
	}
	if sim.Channel != "vic-channel" || !sim.Enabled {
		t.Errorf("sim = %+v", sim)
	}
	if !sim.ConnectionsOpen {
		t.Error("fresh activation should accept connections")
	}

	// Panel phones exist.
	if _, err := f.phones.Phone("victoria_north"); err != nil {
		t.Errorf("panel phone missing: %v", err)
	}

	// Gateways are created but never auto-activated at boot.
	for _, call := range f.gateways.calls {
		if call == "activate:victoria" {
			t.Error("gateway activated at boot")
		}
	}
}

func TestRegisterSessionRequiresVoice(t *testing.T) {
	f := newFixture(t)

	s := &fakeSession{id: "sess-1"}
	f.registry.RegisterSession(context.Background(), s, "alice")

	payload, ok := s.last(transport.EventSessionAuthenticated)
	if !ok {
		t.Fatal("no sessionAuthenticated event")
	}
	auth := payload.(transport.SessionAuthenticated)
	if auth.OK || auth.Error != transport.ErrCodeVoiceDisconnected {
		t.Errorf("got %+v, want voice-disconnected failure", auth)
	}
}

func TestRegisterSessionInVoice(t *testing.T) {
	f := newFixture(t)
	f.voice.SetPresence("alice", "vic-channel")

	s := &fakeSession{id: "sess-1"}
	f.registry.RegisterSession(context.Background(), s, "alice")

	payload, ok := s.last(transport.EventSessionAuthenticated)
	if !ok {
		t.Fatal("no sessionAuthenticated event")
	}
	if auth := payload.(transport.SessionAuthenticated); !auth.OK {
		t.Errorf("got %+v, want OK", auth)
	}
	if _, ok := s.last(transport.EventGameStateChanged); !ok {
		t.Error("no game state pushed on authentication")
	}

	if ch, ok := f.registry.VoiceChannel("alice"); !ok || ch != "vic-channel" {
		t.Errorf("VoiceChannel = %q, %v", ch, ok)
	}
}

func TestClaimAndReleasePanel(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")

	if err := f.registry.ClaimPanel("alice", "victoria", "north"); err != nil {
		t.Fatalf("ClaimPanel: %v", err)
	}

	p, err := f.phones.Phone("victoria_north")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner() != "alice" {
		t.Errorf("phone owner = %q, want alice", p.Owner())
	}

	// A second player cannot take the same panel.
	f.joinedPlayer(t, "bob")
	if err := f.registry.ClaimPanel("bob", "victoria", "north"); !errors.Is(err, ErrPanelTaken) {
		t.Errorf("got %v, want ErrPanelTaken", err)
	}

	if err := f.registry.ReleasePanel("alice", "victoria", "north"); err != nil {
		t.Fatalf("ReleasePanel: %v", err)
	}
	if p.Owner() != "" {
		t.Errorf("phone owner = %q after release, want empty", p.Owner())
	}
}

func TestClaimPanelConnectionsClosed(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")
	f.joinedPlayer(t, "admin-1")

	if err := f.registry.SetConnectionsOpen("victoria", false); err != nil {
		t.Fatal(err)
	}

	if err := f.registry.ClaimPanel("alice", "victoria", "north"); !errors.Is(err, ErrConnectionsClosed) {
		t.Errorf("got %v, want ErrConnectionsClosed", err)
	}
	// Superusers bypass the gate.
	if err := f.registry.ClaimPanel("admin-1", "victoria", "south"); err != nil {
		t.Errorf("superuser claim failed: %v", err)
	}
}

func TestDisableHostPreservesStateForReactivation(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")

	if err := f.registry.ClaimPanel("alice", "victoria", "north"); err != nil {
		t.Fatal(err)
	}
	clock := model.ClockData{SecondsSinceMidnight: 3600, Speed: 2}
	f.registry.UpdateSimClock("victoria", clock)

	if err := f.registry.DisableHost("victoria"); err != nil {
		t.Fatalf("DisableHost: %v", err)
	}
	if _, ok := f.registry.ActiveSim("victoria"); ok {
		t.Fatal("victoria still active")
	}

	if err := f.registry.EnableHost(context.Background(), "victoria"); err != nil {
		t.Fatalf("EnableHost: %v", err)
	}
	sim, ok := f.registry.ActiveSim("victoria")
	if !ok {
		t.Fatal("victoria not reactivated")
	}
	if sim.Clock.SecondsSinceMidnight != 3600 {
		t.Errorf("clock not preserved: %+v", sim.Clock)
	}
	if sim.Panel("north").Player != "alice" {
		t.Errorf("panel claim not preserved: %q", sim.Panel("north").Player)
	}
	p, err := f.phones.Phone("victoria_north")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner() != "alice" {
		t.Errorf("phone assignment not restored: %q", p.Owner())
	}
}

func TestDisableHostStopsGatewayFirst(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.DisableHost("victoria"); err != nil {
		t.Fatal(err)
	}

	sawDeactivate := false
	for _, call := range f.gateways.calls {
		if call == "deactivate:victoria" {
			sawDeactivate = true
		}
	}
	if !sawDeactivate {
		t.Errorf("gateway never deactivated: %v", f.gateways.calls)
	}
}

func TestSessionDisconnectedRetainsPlayerInVoice(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")
	if err := f.registry.ClaimPanel("alice", "victoria", "north"); err != nil {
		t.Fatal(err)
	}

	f.registry.SessionDisconnected(context.Background(), "sess-alice")

	// Still in voice, so the claim survives for a reconnect.
	sim, _ := f.registry.ActiveSim("victoria")
	if sim.Panel("north").Player != "alice" {
		t.Error("panel claim lost on session disconnect")
	}

	// Reconnecting session finds the player again.
	s2 := &fakeSession{id: "sess-alice-2"}
	f.registry.RegisterSession(context.Background(), s2, "alice")
	if payload, ok := s2.last(transport.EventSessionAuthenticated); !ok || !payload.(transport.SessionAuthenticated).OK {
		t.Error("reconnect not authenticated")
	}
}

func TestSessionDisconnectedChecksLiveVoicePresence(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")
	if err := f.registry.ClaimPanel("alice", "victoria", "north"); err != nil {
		t.Fatal(err)
	}

	// Alice left voice but the departure event never arrived; the cached
	// channel is stale.
	f.voice.SetPresence("alice", "")
	f.registry.SessionDisconnected(context.Background(), "sess-alice")

	sim, _ := f.registry.ActiveSim("victoria")
	if sim.Panel("north").Player != "" {
		t.Error("panel claim survived full departure")
	}
	p, err := f.phones.Phone("victoria_north")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner() != "" {
		t.Errorf("phone owner = %q after full departure", p.Owner())
	}

	// A fresh session starts over as a prospect.
	s2 := &fakeSession{id: "sess-alice-2"}
	f.registry.RegisterSession(context.Background(), s2, "alice")
	if payload, ok := s2.last(transport.EventSessionAuthenticated); !ok || payload.(transport.SessionAuthenticated).OK {
		t.Error("departed player authenticated without voice")
	}
}

func TestUnregisterVoiceReleasesEverything(t *testing.T) {
	f := newFixture(t)
	s := f.joinedPlayer(t, "alice")
	if err := f.registry.ClaimPanel("alice", "victoria", "north"); err != nil {
		t.Fatal(err)
	}

	f.registry.UnregisterVoice("alice")

	sim, _ := f.registry.ActiveSim("victoria")
	if sim.Panel("north").Player != "" {
		t.Error("panel claim survived voice departure")
	}
	p, err := f.phones.Phone("victoria_north")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner() != "" {
		t.Error("phone assignment survived voice departure")
	}

	// The still-connected session is told to rejoin voice.
	payload, ok := s.last(transport.EventSessionAuthenticated)
	if !ok {
		t.Fatal("no event after voice departure")
	}
	if auth := payload.(transport.SessionAuthenticated); auth.OK || auth.Error != transport.ErrCodeVoiceDisconnected {
		t.Errorf("got %+v, want voice-disconnected", auth)
	}
}

func TestGatewayCredentialsRoundTrip(t *testing.T) {
	f := newFixture(t)

	if err := f.registry.SetGatewayCredentials("victoria", "feed-user", "hunter2"); err != nil {
		t.Fatalf("SetGatewayCredentials: %v", err)
	}

	host, ok := f.registry.GatewayHost("victoria")
	if !ok {
		t.Fatal("host missing")
	}
	if host.InterfaceGateway.EncryptedPassword == "hunter2" {
		t.Error("password stored in plaintext")
	}
	if !config.IsEncrypted(host.InterfaceGateway.EncryptedPassword) {
		t.Errorf("stored password is not ciphertext: %q", host.InterfaceGateway.EncryptedPassword)
	}

	user, pass, err := f.registry.GatewayCredentials("victoria")
	if err != nil {
		t.Fatalf("GatewayCredentials: %v", err)
	}
	if user != "feed-user" || pass != "hunter2" {
		t.Errorf("got %q/%q", user, pass)
	}

	// The client view only ever reveals that a password exists.
	view := host.ClientView()
	if !view.InterfaceGateway.HasPassword {
		t.Error("view does not report a password")
	}
}

func TestEnableInterfaceGatewayRequiresEnabledHost(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.DisableHost("victoria"); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.EnableInterfaceGateway(context.Background(), "victoria"); !errors.Is(err, ErrHostDisabled) {
		t.Errorf("got %v, want ErrHostDisabled", err)
	}
}

func TestEnableInterfaceGatewayActivatesClient(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.EnableInterfaceGateway(context.Background(), "victoria"); err != nil {
		t.Fatal(err)
	}
	saw := false
	for _, call := range f.gateways.calls {
		if call == "activate:victoria" {
			saw = true
		}
	}
	if !saw {
		t.Errorf("client never activated: %v", f.gateways.calls)
	}
}

func TestAddHostRollsBackOnActivationFailure(t *testing.T) {
	f := newFixture(t)

	// No definition file exists for this simulation, so activation fails.
	h := model.Host{
		Sim:              "nowhere",
		Host:             "sim.example.net",
		Channel:          "nowhere-channel",
		Enabled:          true,
		InterfaceGateway: model.InterfaceGateway{Port: 51515},
	}
	if err := f.registry.AddHost(context.Background(), h); err == nil {
		t.Fatal("expected activation failure")
	}

	// The host persists, but disabled so config matches reality.
	views := f.registry.HostState()
	for _, v := range views {
		if v.Sim == "nowhere" && v.Enabled {
			t.Error("failed host left enabled")
		}
	}
}

func TestMovePlayerToLobbyAndAFK(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")

	if !f.registry.MovePlayerToLobby(context.Background(), "alice") {
		t.Fatal("lobby move failed")
	}
	if ch, _ := f.registry.VoiceChannel("alice"); ch != "lobby-channel" {
		t.Errorf("channel = %q, want lobby-channel", ch)
	}

	if !f.registry.MarkAFK(context.Background(), "alice") {
		t.Fatal("afk move failed")
	}
	if ch, _ := f.registry.VoiceChannel("alice"); ch != "afk-channel" {
		t.Errorf("channel = %q, want afk-channel", ch)
	}
}

func TestStatusAndCounts(t *testing.T) {
	f := newFixture(t)
	f.joinedPlayer(t, "alice")
	f.registry.SetInCall("alice", true)

	status := f.registry.Status()
	if len(status.Players) != 1 || !status.Players[0].InCall {
		t.Errorf("players = %+v", status.Players)
	}
	if len(status.Hosts) != 1 {
		t.Errorf("hosts = %+v", status.Hosts)
	}
	if len(status.Phones) == 0 {
		t.Error("no phones in status")
	}

	total, connected, inVoice, inCall := f.registry.PlayerCounts()
	if total != 1 || connected != 1 || inVoice != 1 || inCall != 1 {
		t.Errorf("counts = %d, %d, %d, %d", total, connected, inVoice, inCall)
	}
	if f.registry.ActiveSimulationCount() != 1 {
		t.Errorf("active sims = %d", f.registry.ActiveSimulationCount())
	}
}

func TestIsSuperUser(t *testing.T) {
	f := newFixture(t)
	if !f.registry.IsSuperUser("admin-1") {
		t.Error("admin-1 should be a superuser")
	}
	if f.registry.IsSuperUser("alice") {
		t.Error("alice should not be a superuser")
	}
}

type fakeCallEnder struct {
	ended []string
}

func (f *fakeCallEnder) EndCallsForPlayer(_ context.Context, playerID string) {
	f.ended = append(f.ended, playerID)
}

func TestUnregisterVoiceEndsOngoingCalls(t *testing.T) {
	f := newFixture(t)
	ender := &fakeCallEnder{}
	f.registry.SetCallEnder(ender)
	f.joinedPlayer(t, "alice")

	f.registry.UnregisterVoice("alice")

	if len(ender.ended) != 1 || ender.ended[0] != "alice" {
		t.Errorf("ended = %v, want [alice]", ender.ended)
	}
}

type fakeTrainRemover struct {
	removed []string
}

func (f *fakeTrainRemover) RemoveForSim(simID string) {
	f.removed = append(f.removed, simID)
}

func TestDisableHostForgetsTrains(t *testing.T) {
	f := newFixture(t)
	remover := &fakeTrainRemover{}
	f.registry.SetTrains(remover)

	if err := f.registry.DisableHost("victoria"); err != nil {
		t.Fatal(err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "victoria" {
		t.Errorf("removed = %v, want [victoria]", remover.removed)
	}
}

func TestDeleteHostForgetsTrains(t *testing.T) {
	f := newFixture(t)
	remover := &fakeTrainRemover{}
	f.registry.SetTrains(remover)

	if err := f.registry.DeleteHost("victoria"); err != nil {
		t.Fatal(err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "victoria" {
		t.Errorf("removed = %v, want [victoria]", remover.removed)
	}
}
