package feed

import (
	"log/slog"
	"sync"

	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/phone"
)

// SimLookup resolves active simulations. Implemented by the session
// registry.
type SimLookup interface {
	ActiveSim(simID string) (*model.Simulation, bool)
}

// TrainDirectory tracks every train reported by the feeds and keeps their
// carried phones named and located.
type TrainDirectory struct {
	phones *phone.Manager
	sims   SimLookup
	logger *slog.Logger

	mu     sync.Mutex
	trains []*model.Train
}

// NewTrainDirectory creates an empty train directory.
func NewTrainDirectory(phones *phone.Manager, sims SimLookup, logger *slog.Logger) *TrainDirectory {
	return &TrainDirectory{phones: phones, sims: sims, logger: logger}
}

// HandleTrainLocation processes one position report. A known train is
// re-headcoded and relocated as needed; an unknown one gets a train entry
// and a carried phone.
func (d *TrainDirectory) HandleTrainLocation(simID string, upd TrainLocationUpdate) {
	suid := simID + upd.UID

	d.mu.Lock()
	train := d.lookup(suid)
	if train == nil {
		train = model.NewTrain(simID, upd.UID, upd.Headcode)
		d.trains = append(d.trains, train)
		d.mu.Unlock()

		d.phones.CreateTrainPhone(train)
		d.logger.Info("train created",
			slog.String("sim", simID),
			slog.String("suid", suid),
			slog.String("headcode", upd.Headcode))
	} else {
		if train.Headcode() != upd.Headcode {
			d.logger.Info("train re-headcoded",
				slog.String("suid", suid),
				slog.String("from", train.Headcode()),
				slog.String("to", upd.Headcode))
			train.SetHeadcode(upd.Headcode)
			if p := train.Phone(); p != nil {
				p.SetName(upd.Headcode)
			}
		}
		d.mu.Unlock()
	}

	panelID, ok := d.resolvePanel(simID, upd.Location)
	if !ok {
		return
	}

	d.mu.Lock()
	if train.Location().PanelID != panelID {
		d.logger.Debug("train relocated",
			slog.String("suid", suid),
			slog.String("reportedAt", upd.Location),
			slog.String("panel", panelID))
		train.SetLocation(model.NewLocation(simID, panelID))
	}
	d.mu.Unlock()
}

// resolvePanel maps a feed reporting location to a panel. Single-panel
// simulations need no alias table.
func (d *TrainDirectory) resolvePanel(simID, reportingLocation string) (string, bool) {
	sim, ok := d.sims.ActiveSim(simID)
	if !ok {
		return "", false
	}
	if len(sim.Panels) == 1 {
		return sim.Panels[0].ID, true
	}
	return sim.PanelByAlias(reportingLocation)
}

// Train returns a tracked train by its simulation-scoped id.
func (d *TrainDirectory) Train(suid string) (*model.Train, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.lookup(suid)
	return t, t != nil
}

// Count returns the number of tracked trains.
func (d *TrainDirectory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.trains)
}

// RemoveForSim forgets every train belonging to a deactivated simulation.
// Their phones are pruned by the phone directory.
func (d *TrainDirectory) RemoveForSim(simID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.trains[:0]
	for _, t := range d.trains {
		if t.SimID() != simID {
			kept = append(kept, t)
		}
	}
	d.trains = kept
}

func (d *TrainDirectory) lookup(suid string) *model.Train {
	for _, t := range d.trains {
		if t.SUID() == suid {
			return t
		}
	}
	return nil
}
