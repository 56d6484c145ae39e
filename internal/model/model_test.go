package model

import (
	"errors"
	"sync"
	"testing"
)

func TestCallTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []CallStatus
		wantErr bool
	}{
		{"accept then end", []CallStatus{StatusAccepted, StatusEnded}, false},
		{"reject", []CallStatus{StatusRejected}, false},
		{"end before accept", []CallStatus{StatusEnded}, true},
		{"accept twice", []CallStatus{StatusAccepted, StatusAccepted}, true},
		{"reject after accept", []CallStatus{StatusAccepted, StatusRejected}, true},
		{"revive ended call", []CallStatus{StatusAccepted, StatusEnded, StatusAccepted}, true},
		{"revive rejected call", []CallStatus{StatusRejected, StatusAccepted}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := NewPhone("a_1", "One", PhoneFixed, NewLocation("a", "1"))
			receiver := NewPhone("a_2", "Two", PhoneFixed, NewLocation("a", "2"))
			call := NewCallRequest(sender, []*Phone{receiver}, CallP2P, LevelNormal)

			var err error
			for _, to := range tt.path {
				if err = call.Transition(to); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("err = %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCallRequestReceiver(t *testing.T) {
	sender := NewPhone("a_1", "One", PhoneFixed, NewLocation("a", "1"))
	r1 := NewPhone("a_2", "Two", PhoneFixed, NewLocation("a", "2"))
	r2 := NewPhone("a_3", "Three", PhoneFixed, NewLocation("a", "3"))

	p2p := NewCallRequest(sender, []*Phone{r1}, CallP2P, LevelNormal)
	got, err := p2p.Receiver()
	if err != nil || got.ID() != "a_2" {
		t.Fatalf("Receiver() = %v, %v", got, err)
	}

	group := NewCallRequest(sender, []*Phone{r1, r2}, CallGroup, LevelUrgent)
	if _, err := group.Receiver(); !errors.Is(err, ErrNotP2P) {
		t.Fatalf("group Receiver() err = %v, want ErrNotP2P", err)
	}
}

func TestCallRequestMembership(t *testing.T) {
	sender := NewPhone("a_1", "One", PhoneFixed, NewLocation("a", "1"))
	r1 := NewPhone("a_2", "Two", PhoneFixed, NewLocation("a", "2"))
	r1.SetOwner("bob")
	outsider := NewPhone("a_9", "Nine", PhoneFixed, NewLocation("a", "9"))

	call := NewCallRequest(sender, []*Phone{r1}, CallP2P, LevelNormal)

	if !call.IsFromPhone(sender) || call.IsFromPhone(r1) {
		t.Error("IsFromPhone wrong")
	}
	if !call.IsForPhone(r1) || call.IsForPhone(outsider) {
		t.Error("IsForPhone wrong")
	}
	if !call.HasReceiverOwner("bob") || call.HasReceiverOwner("alice") {
		t.Error("HasReceiverOwner wrong")
	}
}

func TestCarriedPhoneLocation(t *testing.T) {
	train := NewTrain("victoria", "001", "1A01")
	train.SetLocation(NewLocation("victoria", "north"))
	p := NewCarriedPhone("victoria001", "1A01", PhoneTrain, train)

	if loc := p.Location(); loc.PanelID != "north" {
		t.Errorf("location = %+v, want north", loc)
	}
	if err := p.SetLocation(NewLocation("victoria", "south")); !errors.Is(err, ErrCarriedPhone) {
		t.Fatalf("SetLocation on carried phone err = %v, want ErrCarriedPhone", err)
	}

	// The phone follows the carrier, not the other way around.
	train.SetLocation(NewLocation("victoria", "south"))
	if loc := p.Location(); loc.PanelID != "south" {
		t.Errorf("location after carrier move = %+v", loc)
	}
}

// Exercised under -race: owners and names are written by the session and
// feed paths while the call engine reads them.
func TestPhoneConcurrentAccess(t *testing.T) {
	train := NewTrain("victoria", "001", "1A01")
	train.SetLocation(NewLocation("victoria", "north"))
	p := NewCarriedPhone("victoria001", "1A01", PhoneTrain, train)
	train.SetPhone(p)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p.SetOwner("driver-1")
			p.SetName("1A05")
			train.SetLocation(NewLocation("victoria", "south"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = p.Owner()
			_ = p.Entry()
			_ = p.Location()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = p.Book()
			_ = p.AdminView()
		}
	}()
	wg.Wait()

	if p.Owner() != "driver-1" {
		t.Errorf("owner = %q, want driver-1", p.Owner())
	}
}

func TestLocationPhoneID(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{NewLocation("victoria", "north"), "victoria_north"},
		{ControlLocation("victoria"), "victoria_control"},
	}
	for _, tt := range tests {
		if got := tt.loc.PhoneID(); got != tt.want {
			t.Errorf("PhoneID(%+v) = %q, want %q", tt.loc, got, tt.want)
		}
	}
	if !ControlLocation("victoria").IsControl() {
		t.Error("control location not recognised")
	}
	if NewLocation("victoria", "north").IsControl() {
		t.Error("panel location marked as control")
	}
	if !(Location{}).IsZero() {
		t.Error("zero location not recognised")
	}
}

func TestHostValidate(t *testing.T) {
	valid := Host{
		Sim: "victoria", Host: "sim.example.net", Channel: "vic",
		InterfaceGateway: InterfaceGateway{Port: 51515},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid host rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Host)
	}{
		{"missing sim", func(h *Host) { h.Sim = "" }},
		{"missing host", func(h *Host) { h.Host = "" }},
		{"missing channel", func(h *Host) { h.Channel = "" }},
		{"bad port", func(h *Host) { h.Port = 70000 }},
		{"bad gateway port", func(h *Host) { h.InterfaceGateway.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := valid
			tt.mutate(&h)
			if err := h.Validate(); !errors.Is(err, ErrInvalidHost) {
				t.Errorf("err = %v, want ErrInvalidHost", err)
			}
		})
	}
}

func TestHostStoredStripsRuntimeState(t *testing.T) {
	h := Host{
		Sim: "victoria", Host: "sim.example.net", Channel: "vic",
		InterfaceGateway: InterfaceGateway{Port: 51515},
	}
	h.EnableGateway()
	h.SetGatewayState(GatewayError, "connection refused")

	stored := h.Stored()
	if stored.InterfaceGateway.Enabled {
		t.Error("gateway stored enabled")
	}
	if stored.InterfaceGateway.ConnectionState != "" || stored.InterfaceGateway.ErrorMessage != "" {
		t.Errorf("runtime state persisted: %+v", stored.InterfaceGateway)
	}
}

func TestHostClientViewHidesSecrets(t *testing.T) {
	h := Host{
		Sim: "victoria", Host: "sim.example.net", Channel: "vic",
		InterfaceGateway: InterfaceGateway{
			Port:              51515,
			Username:          "feed",
			EncryptedPassword: "bm9uY2U=:Y2lwaGVydGV4dA==",
		},
	}

	view := h.ClientView()
	if !view.InterfaceGateway.HasPassword {
		t.Error("HasPassword = false")
	}
	if view.InterfaceGateway.Username != "feed" {
		t.Errorf("username = %q", view.InterfaceGateway.Username)
	}
	if view.InterfaceGateway.ConnectionState != GatewayDisconnected {
		t.Errorf("default state = %q, want disconnected", view.InterfaceGateway.ConnectionState)
	}
}

func TestClockFromFeed(t *testing.T) {
	tests := []struct {
		name      string
		interval  int
		wantSpeed float64
	}{
		{"realtime", 500, 1},
		{"double speed", 250, 2},
		{"half speed", 1000, 0.5},
		{"capped", 1, 32},
		{"zero interval", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := ClockFromFeed(43200, tt.interval, false)
			if clock.Speed != tt.wantSpeed {
				t.Errorf("speed = %v, want %v", clock.Speed, tt.wantSpeed)
			}
			if clock.SecondsSinceMidnight != 43200 {
				t.Errorf("seconds = %d", clock.SecondsSinceMidnight)
			}
		})
	}
}
