// Package phone maintains the directory of call endpoints: fixed panel and
// control phones generated from simulation topology, plus train and mobile
// phones created at runtime. It derives the phonebook views pushed to
// players.
package phone

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/topology"
)

// Sentinel errors for directory lookups and mutations.
var (
	ErrPhoneNotFound = errors.New("phone not found")
	ErrPhoneExists   = errors.New("a phone with that number already exists")
	ErrNoLocation    = errors.New("phone has no resolvable location")
)

// Notifier pushes phonebook updates to a player's sessions. Implemented by
// the session registry; set after construction to break the dependency
// cycle between the directory and the registry.
type Notifier interface {
	SendPhonebook(playerID string, books []model.PhoneBook)
}

// Manager owns every phone in the system.
type Manager struct {
	topo   *topology.Store
	logger *slog.Logger

	mu       sync.Mutex
	phones   []*model.Phone
	sims     []*model.Simulation
	notifier Notifier
}

// NewManager creates an empty phone directory.
func NewManager(topo *topology.Store, logger *slog.Logger) *Manager {
	return &Manager{topo: topo, logger: logger}
}

// SetNotifier wires the phonebook push target.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// GeneratePhonesForSim creates the fixed phones for an activated
// simulation: one per panel, one control line, and one for every
// cross-simulation neighbour a panel references so those appear in
// phonebooks before their own simulation activates. Generation is
// idempotent; phones that already exist are kept.
func (m *Manager) GeneratePhonesForSim(sim *model.Simulation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, panel := range sim.Panels {
		loc := model.NewLocation(sim.ID, panel.ID)
		if m.lookup(loc.PhoneID()) == nil {
			p := model.NewPhone(loc.PhoneID(), panel.Name, model.PhoneFixed, loc)
			m.phones = append(m.phones, p)
			m.logger.Debug("phone created", slog.String("phone", p.ID()))
		}
		panel.PhoneID = loc.PhoneID()

		for _, nb := range panel.Neighbours {
			if nb.SimID == sim.ID {
				continue
			}
			if m.lookup(nb.PhoneID()) != nil {
				continue
			}
			p := model.NewPhone(nb.PhoneID(), m.neighbourName(nb), model.PhoneFixed, nb)
			m.phones = append(m.phones, p)
			m.logger.Debug("neighbour phone created", slog.String("phone", p.ID()))
		}
	}

	controlLoc := model.ControlLocation(sim.ID)
	if m.lookup(controlLoc.PhoneID()) == nil {
		m.phones = append(m.phones, model.NewPhone(controlLoc.PhoneID(), "Control", model.PhoneFixed, controlLoc))
	}

	m.sims = append(m.sims, sim)
}

// neighbourName resolves a neighbour panel's display name from its own
// simulation's definition, falling back to the raw panel id.
func (m *Manager) neighbourName(loc model.Location) string {
	sim, err := m.topo.Load(loc.SimID)
	if err != nil {
		return loc.PanelID
	}
	if panel := sim.Panel(loc.PanelID); panel != nil {
		return panel.Name
	}
	return loc.PanelID
}

// RemoveSim drops the simulation from the directory and prunes every phone
// that no remaining active simulation needs: its panel and control phones,
// its trains and mobiles, and any neighbour phone no longer referenced.
func (m *Manager) RemoveSim(simID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sim := range m.sims {
		if sim.ID == simID {
			m.sims = append(m.sims[:i], m.sims[i+1:]...)
			break
		}
	}

	// Every phone id the remaining active simulations still reference.
	needed := make(map[string]bool)
	active := make(map[string]bool)
	for _, sim := range m.sims {
		active[sim.ID] = true
		needed[model.ControlLocation(sim.ID).PhoneID()] = true
		for _, panel := range sim.Panels {
			needed[model.NewLocation(sim.ID, panel.ID).PhoneID()] = true
			for _, nb := range panel.Neighbours {
				needed[nb.PhoneID()] = true
			}
		}
	}

	kept := m.phones[:0]
	for _, p := range m.phones {
		keep := false
		switch {
		case p.IsType(model.PhoneFixed):
			keep = needed[p.ID()]
		case p.Carrier() != nil:
			// Train phones live and die with their simulation.
			keep = active[p.Carrier().SimID()]
		default:
			keep = active[p.Location().SimID]
		}
		if keep {
			kept = append(kept, p)
		} else {
			m.logger.Debug("phone pruned", slog.String("phone", p.ID()))
		}
	}
	m.phones = kept
}

// CreateTrainPhone creates the carried phone for a train and registers it.
func (m *Manager) CreateTrainPhone(train *model.Train) *model.Phone {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := model.NewCarriedPhone(train.SUID(), train.Headcode(), model.PhoneTrain, train)
	train.SetPhone(p)
	m.phones = append(m.phones, p)
	return p
}

// CreateMobilePhone creates a mobile phone with a caller-chosen number.
func (m *Manager) CreateMobilePhone(number, name string, loc model.Location, hidden bool) (*model.Phone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if number == "" {
		return nil, fmt.Errorf("%w: empty number", ErrPhoneNotFound)
	}
	if m.lookup(number) != nil {
		return nil, fmt.Errorf("%w: %s", ErrPhoneExists, number)
	}
	var p *model.Phone
	if hidden {
		p = model.NewHiddenPhone(number, name, model.PhoneMobile, loc)
	} else {
		p = model.NewPhone(number, name, model.PhoneMobile, loc)
	}
	m.phones = append(m.phones, p)
	return p, nil
}

// Phone returns the phone with the given id.
func (m *Manager) Phone(phoneID string) (*model.Phone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.lookup(phoneID); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPhoneNotFound, phoneID)
}

// AllPhones returns the admin view of every phone.
func (m *Manager) AllPhones() []model.PhoneAdminView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PhoneAdminView, len(m.phones))
	for i, p := range m.phones {
		out[i] = p.AdminView()
	}
	return out
}

// PhoneCount returns the number of registered phones, by type.
func (m *Manager) PhoneCount() map[model.PhoneType]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.PhoneType]int)
	for _, p := range m.phones {
		counts[p.Type()]++
	}
	return counts
}

// Assign gives a phone to a player and pushes their updated phonebooks.
func (m *Manager) Assign(phoneID, playerID string) error {
	m.mu.Lock()
	p := m.lookup(phoneID)
	if p == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPhoneNotFound, phoneID)
	}
	p.SetOwner(playerID)
	m.mu.Unlock()

	m.PushPhonebooks(playerID)
	return nil
}

// Unassign clears a phone's owner and pushes that player's phonebooks.
func (m *Manager) Unassign(phoneID string) error {
	m.mu.Lock()
	p := m.lookup(phoneID)
	if p == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPhoneNotFound, phoneID)
	}
	owner := p.Owner()
	p.SetOwner("")
	m.mu.Unlock()

	if owner != "" {
		m.PushPhonebooks(owner)
	}
	return nil
}

// UnassignAllForOwner releases every phone a player holds.
func (m *Manager) UnassignAllForOwner(playerID string) {
	m.mu.Lock()
	for _, p := range m.phones {
		if p.Owner() == playerID {
			p.SetOwner("")
		}
	}
	m.mu.Unlock()

	m.PushPhonebooks(playerID)
}

// PhonesForOwner returns every phone assigned to the player.
func (m *Manager) PhonesForOwner(playerID string) []*model.Phone {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phonesForOwner(playerID)
}

// SpeedDial derives a phone's speed-dial list: the phones of its panel's
// neighbours plus its simulation's control line, never itself. A phone
// without a resolvable location has an empty list.
func (m *Manager) SpeedDial(p *model.Phone) []model.PhonebookEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speedDial(p)
}

// TrainsAndMobiles derives the list of train and mobile phones sharing the
// phone's simulation.
func (m *Manager) TrainsAndMobiles(p *model.Phone) []model.PhonebookEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainsAndMobiles(p)
}

// RECRecipients returns the receiver set for a railway emergency call from
// the given phone: every neighbour of its panel plus the control line if a
// player holds it. An unresolvable sender location is an error, with the
// known panel ids logged for diagnosis.
func (m *Manager) RECRecipients(sender *model.Phone) ([]*model.Phone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc := sender.Location()
	if loc.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoLocation, sender.ID())
	}
	sim := m.activeSim(loc.SimID)
	if sim == nil {
		return nil, fmt.Errorf("%w: simulation %s is not active", ErrNoLocation, loc.SimID)
	}
	panel := sim.Panel(loc.PanelID)
	if panel == nil {
		m.logger.Error("emergency call from unknown panel",
			slog.String("phone", sender.ID()),
			slog.String("sim", sim.ID),
			slog.String("panel", loc.PanelID),
			slog.Any("knownPanels", sim.PanelIDs()))
		return nil, fmt.Errorf("%w: panel %s not found in %s", ErrNoLocation, loc.PanelID, sim.ID)
	}

	var out []*model.Phone
	for _, nb := range panel.Neighbours {
		if p := m.lookup(nb.PhoneID()); p != nil {
			out = append(out, p)
		}
	}
	if control := m.lookup(model.ControlLocation(sim.ID).PhoneID()); control != nil && control.Owner() != "" {
		out = append(out, control)
	}
	return out, nil
}

// PhoneBooks recomputes and returns the phonebooks for every phone a
// player holds.
func (m *Manager) PhoneBooks(playerID string) []model.PhoneBook {
	m.mu.Lock()
	defer m.mu.Unlock()

	phones := m.phonesForOwner(playerID)
	books := make([]model.PhoneBook, len(phones))
	for i, p := range phones {
		p.SetSpeedDial(m.speedDial(p))
		p.SetTrainsAndMobiles(m.trainsAndMobiles(p))
		books[i] = p.Book()
	}
	return books
}

// PushPhonebooks recomputes the player's phonebooks and sends them through
// the notifier, if one is wired.
func (m *Manager) PushPhonebooks(playerID string) {
	books := m.PhoneBooks(playerID)

	m.mu.Lock()
	notifier := m.notifier
	m.mu.Unlock()
	if notifier == nil {
		return
	}
	notifier.SendPhonebook(playerID, books)
}

// lookup finds a phone by id. Callers must hold m.mu.
func (m *Manager) lookup(phoneID string) *model.Phone {
	for _, p := range m.phones {
		if p.ID() == phoneID {
			return p
		}
	}
	return nil
}

func (m *Manager) activeSim(simID string) *model.Simulation {
	for _, sim := range m.sims {
		if sim.ID == simID {
			return sim
		}
	}
	return nil
}

func (m *Manager) phonesForOwner(playerID string) []*model.Phone {
	var out []*model.Phone
	for _, p := range m.phones {
		if p.Owner() == playerID {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) speedDial(phone *model.Phone) []model.PhonebookEntry {
	loc := phone.Location()
	if loc.IsZero() {
		m.logger.Debug("phone has no location", slog.String("phone", phone.ID()))
		return nil
	}
	sim := m.activeSim(loc.SimID)
	if sim == nil {
		return nil
	}

	var out []model.PhonebookEntry
	if panel := sim.Panel(loc.PanelID); panel != nil {
		for _, nb := range panel.Neighbours {
			if p := m.lookup(nb.PhoneID()); p != nil && !p.Hidden() {
				out = append(out, p.Entry())
			}
		}
	}
	controlID := model.ControlLocation(sim.ID).PhoneID()
	if controlID != phone.ID() {
		if control := m.lookup(controlID); control != nil {
			out = append(out, control.Entry())
		}
	}
	return out
}

func (m *Manager) trainsAndMobiles(phone *model.Phone) []model.PhonebookEntry {
	var out []model.PhonebookEntry
	for _, p := range m.phones {
		if p == phone || p.Hidden() {
			continue
		}
		if (p.IsType(model.PhoneTrain) || p.IsType(model.PhoneMobile)) && p.InSameSim(phone) {
			out = append(out, p.Entry())
		}
	}
	return out
}
