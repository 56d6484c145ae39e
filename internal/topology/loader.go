// Package topology loads simulation definition files: the static panel and
// adjacency data every activation starts from. Files are parsed once and
// cached; each activation receives its own mutable copy.
package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/railvoice/roclink/internal/model"
)

// ErrSimulationNotFound is returned when no definition file exists for the
// requested simulation id.
var ErrSimulationNotFound = errors.New("simulation not found")

type panelFile struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Neighbours         []struct {
		SimID   string `json:"simId"`
		PanelID string `json:"panelId"`
	} `json:"neighbours"`
	ReportingLocations []string `json:"reportingLocations"`
}

type simulationFile struct {
	Name   string      `json:"name"`
	Panels []panelFile `json:"panels"`
}

// Metadata identifies an available simulation without its panel data.
type Metadata struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store reads simulation definitions from a directory of JSON files, one
// per simulation, named <simId>.json.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*model.Simulation
}

// NewStore creates a store over the given directory.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*model.Simulation),
	}
}

// Load returns a fresh mutable copy of the simulation definition. The
// parsed file is cached; the returned value is never shared, so callers
// may attach per-activation state to it freely.
func (s *Store) Load(simID string) (*model.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.cache[simID]
	if !ok {
		sim, err := s.read(simID)
		if err != nil {
			return nil, err
		}
		s.cache[simID] = sim
		cached = sim
	}
	return copySimulation(cached), nil
}

// Metadata returns the id and display name of a simulation.
func (s *Store) Metadata(simID string) (Metadata, error) {
	sim, err := s.Load(simID)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{ID: sim.ID, Name: sim.Name}, nil
}

// Available lists every simulation with a definition file, sorted by id.
// Unreadable files, and JSON files that define no panels, are logged and
// skipped.
func (s *Store) Available() ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading simulations dir: %w", err)
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		simID := strings.TrimSuffix(e.Name(), ".json")
		sim, err := s.Load(simID)
		if err != nil {
			s.logger.Warn("skipping unreadable simulation file",
				slog.String("sim", simID), slog.String("error", err.Error()))
			continue
		}
		if len(sim.Panels) == 0 {
			s.logger.Warn("skipping simulation file with no panels",
				slog.String("sim", simID))
			continue
		}
		out = append(out, Metadata{ID: sim.ID, Name: sim.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Invalidate drops a simulation from the cache so the next Load re-reads
// its file. With an empty id the whole cache is dropped.
func (s *Store) Invalidate(simID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if simID == "" {
		s.cache = make(map[string]*model.Simulation)
		return
	}
	delete(s.cache, simID)
}

func (s *Store) read(simID string) (*model.Simulation, error) {
	path := filepath.Join(s.dir, simID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSimulationNotFound, simID)
		}
		return nil, fmt.Errorf("reading simulation file: %w", err)
	}

	var file simulationFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing simulation file %s: %w", path, err)
	}

	sim := &model.Simulation{
		ID:              simID,
		Name:            file.Name,
		LocationAliases: make(map[string]string),
	}
	for _, p := range file.Panels {
		panel := &model.Panel{ID: p.ID, Name: p.Name}
		for _, n := range p.Neighbours {
			simRef := n.SimID
			if simRef == "" {
				simRef = simID
			}
			panel.Neighbours = append(panel.Neighbours, model.NewLocation(simRef, n.PanelID))
		}
		sim.Panels = append(sim.Panels, panel)
		for _, alias := range p.ReportingLocations {
			sim.LocationAliases[alias] = p.ID
		}
	}
	return sim, nil
}

func copySimulation(src *model.Simulation) *model.Simulation {
	dst := &model.Simulation{
		ID:              src.ID,
		Name:            src.Name,
		LocationAliases: src.LocationAliases,
	}
	for _, p := range src.Panels {
		panel := &model.Panel{
			ID:         p.ID,
			Name:       p.Name,
			Neighbours: append([]model.Location(nil), p.Neighbours...),
		}
		dst.Panels = append(dst.Panels, panel)
	}
	return dst
}
