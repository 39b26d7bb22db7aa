package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileExists      = errors.New("profile already exists")
	ErrInvalidProfileName = errors.New("invalid profile name")
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Profile is a named snapshot of a Config.
type Profile struct {
	Name        string    `yaml:"name" toml:"name"`
	Description string    `yaml:"description" toml:"description"`
	CreatedAt   time.Time `yaml:"created_at" toml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" toml:"updated_at"`
	Config      *Config   `yaml:"config" toml:"config"`
}

// ProfileInfo summarizes a profile without its full config.
type ProfileInfo struct {
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Provider    string
	Model       string
}

// ProfileStore keeps profiles as YAML files in one directory.
type ProfileStore struct {
	dir string
	now func() time.Time
}

// NewProfileStore creates a store rooted at dir.
func NewProfileStore(dir string) *ProfileStore {
	return &ProfileStore{dir: dir, now: time.Now}
}

// ValidateProfileName reports whether name can be used as a profile name.
func ValidateProfileName(name string) error {
	if !profileNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (use letters, digits, - and _)", ErrInvalidProfileName, name)
	}
	return nil
}

func (s *ProfileStore) path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Exists reports whether a profile with name is stored.
func (s *ProfileStore) Exists(name string) bool {
	if ValidateProfileName(name) != nil {
		return false
	}
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Save stores cfg as a new profile. It refuses to overwrite.
func (s *ProfileStore) Save(name string, cfg *Config, description string) error {
	if err := ValidateProfileName(name); err != nil {
		return err
	}
	if s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrProfileExists, name)
	}
	now := s.now()
	return s.write(&Profile{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Config:      cfg,
	})
}

// Update replaces the config and description of an existing profile.
func (s *ProfileStore) Update(name string, cfg *Config, description string) error {
	p, err := s.Load(name)
	if err != nil {
		return err
	}
	p.Config = cfg
	if description != "" {
		p.Description = description
	}
	p.UpdatedAt = s.now()
	return s.write(p)
}

// Load reads a profile.
func (s *ProfileStore) Load(name string) (*Profile, error) {
	if err := ValidateProfileName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return nil, err
	}
	p := &Profile{Config: DefaultConfig()}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", name, err)
	}
	return p, nil
}

// Delete removes a profile.
func (s *ProfileStore) Delete(name string) error {
	if err := ValidateProfileName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return err
	}
	return nil
}

// Info summarizes one profile.
func (s *ProfileStore) Info(name string) (*ProfileInfo, error) {
	p, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return infoOf(p), nil
}

// List summarizes every stored profile, sorted by name.
func (s *ProfileStore) List() ([]ProfileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []ProfileInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		p, err := s.Load(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue
		}
		infos = append(infos, *infoOf(p))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Export writes a profile to path, as TOML when path ends in .toml and
// YAML otherwise.
func (s *ProfileStore) Export(name, path string) error {
	p, err := s.Load(name)
	if err != nil {
		return err
	}
	data, err := marshalProfile(p, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Import reads a profile file and stores it. When rename is non-empty it
// replaces the stored name. Existing profiles are only replaced with overwrite.
func (s *ProfileStore) Import(path, rename string, overwrite bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	p := &Profile{Config: DefaultConfig()}
	if isTOML(path) {
		err = toml.Unmarshal(data, p)
	} else {
		err = yaml.Unmarshal(data, p)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if rename != "" {
		p.Name = rename
	}
	if err := ValidateProfileName(p.Name); err != nil {
		return "", err
	}
	if s.Exists(p.Name) && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrProfileExists, p.Name)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = s.now()
	return p.Name, s.write(p)
}

func (s *ProfileStore) write(p *Profile) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return os.WriteFile(s.path(p.Name), data, 0600)
}

func marshalProfile(p *Profile, path string) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(p)
	}
	return yaml.Marshal(p)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func infoOf(p *Profile) *ProfileInfo {
	info := &ProfileInfo{
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Config != nil {
		info.Provider = p.Config.Corrector.Provider
		info.Model = p.Config.Defaults.Model
	}
	return info
}
