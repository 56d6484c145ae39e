package config

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
	"time"

	"github.com/railvoice/roclink/internal/model"
)

// Sentinel errors for host mutations against the persisted file.
var (
	ErrHostExists   = errors.New("a host for that simulation already exists")
	ErrHostNotFound = errors.New("host not found")
)

// File is the persisted dispatcher configuration: the host list plus the
// voice and access settings the server boots with.
type File struct {
	Games  []model.Host `json:"games"`
	Server struct {
		Port int `json:"port,omitempty"`
	} `json:"server"`
	Token    string `json:"token,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Guild    string `json:"guild,omitempty"`
	Channels struct {
		Lobby string `json:"lobby,omitempty"`
		AFK   string `json:"afk,omitempty"`
	} `json:"channels"`
	CallChannels []string `json:"callChannels,omitempty"`
	SuperUsers   []string `json:"superUsers,omitempty"`
}

// Store persists the dispatcher configuration to a single JSON file with
// timestamped backups taken before every write.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	cached *File
}

// NewStore creates a store over the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads and caches the configuration file.
func (s *Store) Load() (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", s.path, err)
	}
	for i := range file.Games {
		if err := file.Games[i].Validate(); err != nil {
			return nil, fmt.Errorf("config file %s, host %d: %w", s.path, i, err)
		}
	}
	s.cached = &file
	return &file, nil
}

// Cached returns the last loaded or saved file, or nil before the first
// Load.
func (s *Store) Cached() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

// Save validates the file, backs up the current on-disk version and then
// writes the new one atomically via a temp file and rename. Hosts are
// stored through Stored() so gateway runtime state never persists.
func (s *Store) Save(file *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *file
	stored.Games = make([]model.Host, len(file.Games))
	for i := range file.Games {
		if err := file.Games[i].Validate(); err != nil {
			return fmt.Errorf("refusing to save: host %d: %w", i, err)
		}
		stored.Games[i] = file.Games[i].Stored()
	}

	raw, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := s.backup(); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing config temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}

	s.cached = file
	return nil
}

// backup copies the current config file aside with a timestamp suffix.
// A missing file (first boot) is not an error.
func (s *Store) backup() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.%s.bak", s.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.WriteFile(backupPath, raw, 0o600); err != nil {
		return fmt.Errorf("writing config backup: %w", err)
	}
	s.logger.Debug("config backed up", slog.String("path", backupPath))
	return nil
}

// ListBackups returns the available backup file names, newest first.
func (s *Store) ListBackups() ([]string, error) {
	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Restore replaces the config file with the named backup and reloads it.
func (s *Store) Restore(backupName string) (*File, error) {
	if backupName != filepath.Base(backupName) {
		return nil, fmt.Errorf("invalid backup name %q", backupName)
	}
	backupPath := filepath.Join(filepath.Dir(s.path), backupName)
	raw, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing backup %s: %w", backupName, err)
	}

	s.mu.Lock()
	if err := s.backup(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("writing config temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("replacing config file: %w", err)
	}
	s.cached = &file
	s.mu.Unlock()
	return &file, nil
}

// Host returns the host entry for the simulation, or nil.
func (f *File) Host(simID string) *model.Host {
	for i := range f.Games {
		if f.Games[i].Sim == simID {
			return &f.Games[i]
		}
	}
	return nil
}

// AddHost appends a host, rejecting a duplicate simulation.
func (f *File) AddHost(h model.Host) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if f.Host(h.Sim) != nil {
		return fmt.Errorf("%w: %s", ErrHostExists, h.Sim)
	}
	f.Games = append(f.Games, h)
	return nil
}

// UpdateHost replaces the host for the simulation, preserving stored
// gateway credentials when the update carries none.
func (f *File) UpdateHost(h model.Host) error {
	if err := h.Validate(); err != nil {
		return err
	}
	existing := f.Host(h.Sim)
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrHostNotFound, h.Sim)
	}
	if h.InterfaceGateway.EncryptedPassword == "" {
		h.InterfaceGateway.Username = existing.InterfaceGateway.Username
		h.InterfaceGateway.EncryptedPassword = existing.InterfaceGateway.EncryptedPassword
	}
	*existing = h
	return nil
}

// RemoveHost deletes the host for the simulation.
func (f *File) RemoveHost(simID string) error {
	for i := range f.Games {
		if f.Games[i].Sim == simID {
			f.Games = append(f.Games[:i], f.Games[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotFound, simID)
}

// SetHostEnabled flips a host's enabled flag.
func (f *File) SetHostEnabled(simID string, enabled bool) error {
	h := f.Host(simID)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrHostNotFound, simID)
	}
	if enabled {
		h.Enable()
	} else {
		h.Disable()
	}
	return nil
}
