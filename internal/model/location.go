package model

// Location identifies a panel within a simulation, or the simulation's
// control line when PanelID is empty.
type Location struct {
	SimID   string `json:"simId"`
	PanelID string `json:"panelId,omitempty"`
}

// NewLocation creates a panel location.
func NewLocation(simID, panelID string) Location {
	return Location{SimID: simID, PanelID: panelID}
}

// ControlLocation creates a location for a simulation's control line.
func ControlLocation(simID string) Location {
	return Location{SimID: simID}
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.SimID == ""
}

// IsControl reports whether the location refers to the control line rather
// than a specific panel.
func (l Location) IsControl() bool {
	return l.SimID != "" && l.PanelID == ""
}

// PhoneID returns the composite phone id for this location
// (simId_panelId, or simId_control for the control line).
func (l Location) PhoneID() string {
	if l.IsControl() {
		return l.SimID + "_control"
	}
	return l.SimID + "_" + l.PanelID
}

func (l Location) String() string {
	if l.PanelID == "" {
		return l.SimID
	}
	return l.SimID + "/" + l.PanelID
}
