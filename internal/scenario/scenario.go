package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Unit is a catalog entry available for deployment. SIDC is the
// military symbol identifier, passed through to clients untouched.
type Unit struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	SIDC string `yaml:"sidc,omitempty" json:"sidc,omitempty"`
}

// Scenario describes a playable exercise setup loaded from a YAML file.
type Scenario struct {
	Name                string            `yaml:"name" json:"name"`
	Description         string            `yaml:"description,omitempty" json:"description,omitempty"`
	Teams               []string          `yaml:"teams" json:"teams"`
	Units               map[string][]Unit `yaml:"units" json:"units"`
	TurnDurationSeconds float64           `yaml:"turn_duration_seconds,omitempty" json:"turn_duration_seconds,omitempty"`
}

// Validate checks internal consistency of a scenario definition.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Teams) < 2 {
		return fmt.Errorf("scenario %q: at least two teams required", s.Name)
	}
	teams := make(map[string]bool, len(s.Teams))
	for _, t := range s.Teams {
		if teams[t] {
			return fmt.Errorf("scenario %q: duplicate team %q", s.Name, t)
		}
		teams[t] = true
	}
	seen := make(map[string]bool)
	for team, units := range s.Units {
		if !teams[team] {
			return fmt.Errorf("scenario %q: units assigned to unknown team %q", s.Name, team)
		}
		for _, u := range units {
			if u.ID == "" {
				return fmt.Errorf("scenario %q: unit without id on team %q", s.Name, team)
			}
			if seen[u.ID] {
				return fmt.Errorf("scenario %q: duplicate unit id %q", s.Name, u.ID)
			}
			seen[u.ID] = true
		}
	}
	if s.TurnDurationSeconds < 0 {
		return fmt.Errorf("scenario %q: negative turn duration", s.Name)
	}
	return nil
}

// Parse decodes and validates a single scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Catalog holds the scenarios available on this server, keyed by name.
type Catalog struct {
	scenarios map[string]*Scenario
}

// NewCatalog builds a catalog from already-parsed scenarios, mainly for
// tests.
func NewCatalog(scenarios ...*Scenario) *Catalog {
	c := &Catalog{scenarios: make(map[string]*Scenario, len(scenarios))}
	for _, s := range scenarios {
		c.scenarios[s.Name] = s
	}
	return c
}

// LoadDir reads every .yaml/.yml file in dir into a catalog. A missing
// directory yields an empty catalog; a file that fails to parse is
// skipped with a warning so one bad file does not take the server down.
func LoadDir(dir string) (*Catalog, error) {
	c := &Catalog{scenarios: make(map[string]*Scenario)}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Warn().Str("dir", dir).Msg("Scenario directory not found, starting with empty catalog")
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenario file %s: %w", path, err)
		}
		s, err := Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping invalid scenario file")
			continue
		}
		if _, dup := c.scenarios[s.Name]; dup {
			log.Warn().Str("name", s.Name).Str("file", path).Msg("Skipping scenario with duplicate name")
			continue
		}
		c.scenarios[s.Name] = s
	}
	log.Info().Int("count", len(c.scenarios)).Str("dir", dir).Msg("Scenario catalog loaded")
	return c, nil
}

// Get returns a scenario by name.
func (c *Catalog) Get(name string) (*Scenario, bool) {
	s, ok := c.scenarios[name]
	return s, ok
}

// Names returns the scenario names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of scenarios in the catalog.
func (c *Catalog) Len() int {
	return len(c.scenarios)
}
