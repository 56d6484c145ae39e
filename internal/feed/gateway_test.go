package feed

import (
	"testing"

	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/phone"
	"github.com/railvoice/roclink/internal/topology"
)

type fakeSink struct {
	states map[string]model.ConnectionState
	clocks map[string]model.ClockData
}

func (f *fakeSink) SetGatewayState(simID string, state model.ConnectionState, _ string) {
	if f.states == nil {
		f.states = make(map[string]model.ConnectionState)
	}
	f.states[simID] = state
}

func (f *fakeSink) UpdateSimClock(simID string, clock model.ClockData) {
	if f.clocks == nil {
		f.clocks = make(map[string]model.ClockData)
	}
	f.clocks[simID] = clock
}

type fakeCreds struct{}

func (fakeCreds) GatewayCredentials(string) (string, string, error) { return "", "", nil }

func newGatewayFixture(t *testing.T) (*Manager, *fakeSink, *TrainDirectory) {
	t.Helper()
	logger := testLogger()
	phones := phone.NewManager(topology.NewStore(t.TempDir(), logger), logger)
	sims := &fakeSims{sims: map[string]*model.Simulation{
		"victoria": {ID: "victoria", Panels: []*model.Panel{{ID: "main", Name: "Main"}}},
	}}
	trains := NewTrainDirectory(phones, sims, logger)
	sink := &fakeSink{}
	return NewManager(sink, fakeCreds{}, trains, logger), sink, trains
}

func TestHandleClock(t *testing.T) {
	m, sink, _ := newGatewayFixture(t)

	m.handleClock("victoria", []byte(`{"clock_msg": {"area_id": "victoria", "clock": 43200, "interval": 250, "paused": false}}`))

	clock, ok := sink.clocks["victoria"]
	if !ok {
		t.Fatal("no clock recorded")
	}
	if clock.SecondsSinceMidnight != 43200 {
		t.Errorf("seconds = %d", clock.SecondsSinceMidnight)
	}
	// 250ms between updates is twice realtime.
	if clock.Speed != 2 {
		t.Errorf("speed = %v, want 2", clock.Speed)
	}
}

func TestHandleClockIgnoresOtherTraffic(t *testing.T) {
	m, sink, _ := newGatewayFixture(t)
	m.handleClock("victoria", []byte(`{"other_msg": {}}`))
	m.handleClock("victoria", []byte(`not json`))
	if len(sink.clocks) != 0 {
		t.Errorf("clocks recorded from non-clock traffic: %v", sink.clocks)
	}
}

func TestHandleTrainMovement(t *testing.T) {
	m, _, trains := newGatewayFixture(t)

	m.handleTrainMovement("victoria", []byte(`{"train_location": {"headcode": "1A01", "uid": "001", "location": "ANY"}}`))
	if trains.Count() != 1 {
		t.Fatalf("count = %d, want 1", trains.Count())
	}

	// Delay messages carry no train_location and are ignored.
	m.handleTrainMovement("victoria", []byte(`{"train_delay": {"uid": "002"}}`))
	if trains.Count() != 1 {
		t.Errorf("count = %d after delay message, want 1", trains.Count())
	}
}

func TestCreateClientUpdatesExisting(t *testing.T) {
	m, _, _ := newGatewayFixture(t)

	host := model.Host{Sim: "victoria", Host: "a.example.net", Channel: "c", InterfaceGateway: model.InterfaceGateway{Port: 51515}}
	m.CreateClient(host)
	host.Host = "b.example.net"
	m.CreateClient(host)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(m.clients))
	}
	if m.clients["victoria"].host.Host != "b.example.net" {
		t.Errorf("host not updated: %q", m.clients["victoria"].host.Host)
	}
}
