package model

// Panel is a controllable unit within a simulation. Its neighbours may
// reference panels in other simulations; the adjacency graph is not
// confined to one simulation.
type Panel struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Neighbours []Location `json:"neighbours"`
	Player     string     `json:"player,omitempty"`
	PhoneID    string     `json:"phoneId,omitempty"`
}

// Simulation is one activatable signalling area: its panels, adjacency and
// live per-activation state (clock, join gate, voice channel).
type Simulation struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Panels          []*Panel          `json:"panels"`
	Enabled         bool              `json:"enabled"`
	ConnectionsOpen bool              `json:"connectionsOpen"`
	Channel         string            `json:"channel,omitempty"`
	Clock           ClockData         `json:"clock"`
	LocationAliases map[string]string `json:"-"`
}

// Panel returns the panel with the given id, or nil.
func (s *Simulation) Panel(panelID string) *Panel {
	for _, p := range s.Panels {
		if p.ID == panelID {
			return p
		}
	}
	return nil
}

// PanelByAlias resolves a feed reporting location to a panel id via the
// simulation's alias map.
func (s *Simulation) PanelByAlias(reportingLocation string) (string, bool) {
	id, ok := s.LocationAliases[reportingLocation]
	return id, ok
}

// PanelIDs returns the ids of all panels, used for diagnostics when a
// lookup fails.
func (s *Simulation) PanelIDs() []string {
	ids := make([]string, len(s.Panels))
	for i, p := range s.Panels {
		ids[i] = p.ID
	}
	return ids
}
