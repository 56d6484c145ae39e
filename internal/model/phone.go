package model

import (
	"errors"
	"sync"
)

// PhoneType classifies a call endpoint.
type PhoneType string

const (
	PhoneFixed  PhoneType = "fixed"
	PhoneTrain  PhoneType = "train"
	PhoneMobile PhoneType = "mobile"
)

// ErrCarriedPhone is returned when attempting to set a location on a phone
// whose location is inherited from its carrier.
var ErrCarriedPhone = errors.New("phone location is inherited from its carrier")

// PhonebookEntry is the client-safe summary of a phone.
type PhonebookEntry struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type PhoneType `json:"type"`
}

// PhoneBook is the full directory view pushed to a phone's owner: the phone
// itself plus its derived speed-dial and trains/mobiles lists.
type PhoneBook struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Type             PhoneType        `json:"type"`
	SpeedDial        []PhonebookEntry `json:"speedDial"`
	TrainsAndMobiles []PhonebookEntry `json:"trainsAndMobiles"`
}

// PhoneAdminView is the privileged view of a phone exposed to admin clients.
type PhoneAdminView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     PhoneType `json:"type"`
	Hidden   bool      `json:"hidden"`
	Owner    string    `json:"owner,omitempty"`
	Location string    `json:"location,omitempty"`
}

// Phone is an addressable call endpoint. It is bound either to a fixed
// location (panel or control line) or to a carrier whose location it
// inherits, never both. Fields are unexported; all access goes through
// methods so the location invariant cannot be bypassed. The phone guards
// its mutable fields itself: the phone manager, the call engine and the
// train feed all touch phones under their own locks.
type Phone struct {
	id      string
	typ     PhoneType
	hidden  bool
	carrier *Train

	mu    sync.Mutex
	name  string
	owner string
	loc   Location

	// Derived views, recomputed on demand by the phone manager and cached
	// here only for the next phonebook push.
	speedDial        []PhonebookEntry
	trainsAndMobiles []PhonebookEntry
}

// NewPhone creates a phone fixed at the given location.
func NewPhone(id, name string, typ PhoneType, loc Location) *Phone {
	return &Phone{id: id, name: name, typ: typ, loc: loc}
}

// NewHiddenPhone creates a phone that is excluded from phonebook listings.
func NewHiddenPhone(id, name string, typ PhoneType, loc Location) *Phone {
	return &Phone{id: id, name: name, typ: typ, loc: loc, hidden: true}
}

// NewCarriedPhone creates a phone whose location follows the given carrier.
func NewCarriedPhone(id, name string, typ PhoneType, carrier *Train) *Phone {
	return &Phone{id: id, name: name, typ: typ, carrier: carrier}
}

func (p *Phone) ID() string      { return p.id }
func (p *Phone) Type() PhoneType { return p.typ }
func (p *Phone) Hidden() bool    { return p.hidden }

func (p *Phone) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetName renames the phone (trains are renamed when their headcode changes).
func (p *Phone) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

// IsType reports whether the phone is of the given type.
func (p *Phone) IsType(t PhoneType) bool { return p.typ == t }

// Owner returns the id of the player the phone is assigned to, or "" if
// unassigned.
func (p *Phone) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// SetOwner assigns the phone to a player. An empty id clears the assignment.
func (p *Phone) SetOwner(playerID string) {
	p.mu.Lock()
	p.owner = playerID
	p.mu.Unlock()
}

// Location resolves the phone's location, following the carrier indirection
// if present. Resolution is exactly one hop: carriers hold locations
// directly, so chains cannot form.
func (p *Phone) Location() Location {
	if p.carrier != nil {
		return p.carrier.Location()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc
}

// SetLocation moves a fixed or mobile phone. It is an error to set a
// location on a carried phone; the carrier owns its position.
func (p *Phone) SetLocation(loc Location) error {
	if p.carrier != nil {
		return ErrCarriedPhone
	}
	p.mu.Lock()
	p.loc = loc
	p.mu.Unlock()
	return nil
}

// Carrier returns the train carrying this phone, or nil.
func (p *Phone) Carrier() *Train { return p.carrier }

// InSameSim reports whether both phones resolve to the same simulation.
func (p *Phone) InSameSim(other *Phone) bool {
	if other == nil {
		return false
	}
	a, b := p.Location(), other.Location()
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a.SimID == b.SimID
}

// Entry returns the phonebook summary for this phone.
func (p *Phone) Entry() PhonebookEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PhonebookEntry{ID: p.id, Name: p.name, Type: p.typ}
}

// SetSpeedDial caches the derived speed-dial list for the next push.
func (p *Phone) SetSpeedDial(entries []PhonebookEntry) {
	p.mu.Lock()
	p.speedDial = entries
	p.mu.Unlock()
}

// SetTrainsAndMobiles caches the derived trains/mobiles list for the next push.
func (p *Phone) SetTrainsAndMobiles(entries []PhonebookEntry) {
	p.mu.Lock()
	p.trainsAndMobiles = entries
	p.mu.Unlock()
}

// Book returns the full phonebook view using the cached derived lists.
func (p *Phone) Book() PhoneBook {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PhoneBook{
		ID:               p.id,
		Name:             p.name,
		Type:             p.typ,
		SpeedDial:        p.speedDial,
		TrainsAndMobiles: p.trainsAndMobiles,
	}
}

// AdminView returns the privileged admin view of the phone.
func (p *Phone) AdminView() PhoneAdminView {
	loc := p.Location()
	p.mu.Lock()
	v := PhoneAdminView{
		ID:     p.id,
		Name:   p.name,
		Type:   p.typ,
		Hidden: p.hidden,
		Owner:  p.owner,
	}
	p.mu.Unlock()
	if !loc.IsZero() {
		v.Location = loc.String()
	}
	return v
}
