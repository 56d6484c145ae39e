package model

import "sync"

// Train is a mobile entity reported by the external feed. It carries a
// phone whose location it owns. Mutable fields are guarded here because
// the feed writes them while the call engine reads through the carried
// phone.
type Train struct {
	simID string
	uid   string

	mu       sync.Mutex
	headcode string
	loc      Location
	phone    *Phone
}

// NewTrain creates a train identified by its simulation and feed uid.
func NewTrain(simID, uid, headcode string) *Train {
	return &Train{simID: simID, uid: uid, headcode: headcode}
}

// SUID returns the simulation-scoped unique id (simId + uid), used as the
// train phone's id.
func (t *Train) SUID() string { return t.simID + t.uid }

func (t *Train) SimID() string { return t.simID }
func (t *Train) UID() string   { return t.uid }

func (t *Train) Headcode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headcode
}

// SetHeadcode renames the train. The carried phone is renamed by the caller.
func (t *Train) SetHeadcode(headcode string) {
	t.mu.Lock()
	t.headcode = headcode
	t.mu.Unlock()
}

// Location returns the train's current position.
func (t *Train) Location() Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc
}

// SetLocation moves the train, and with it any carried phone.
func (t *Train) SetLocation(loc Location) {
	t.mu.Lock()
	t.loc = loc
	t.mu.Unlock()
}

// Phone returns the phone carried by this train, or nil.
func (t *Train) Phone() *Phone {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phone
}

// SetPhone attaches the carried phone.
func (t *Train) SetPhone(p *Phone) {
	t.mu.Lock()
	t.phone = p
	t.mu.Unlock()
}
