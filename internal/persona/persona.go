// Package persona resolves assistant persona tags to display metadata.
package persona

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Persona keys for the built-in catalog.
const (
	KeyLevel     = "level_designer"
	KeySystem    = "system_designer"
	KeyQuest     = "quest_designer"
	KeyNarrative = "narrative_designer"
	KeyScenario  = "scenario_designer"
	KeyGeneral   = "general"
)

var errNoFallback = errors.New("persona catalog has no fallback persona")

// Persona describes one assistant voice. Tag is the value exchanged with the
// backend; Key is a stable identifier used by clients.
type Persona struct {
	Key   string `yaml:"key" json:"key"`
	Tag   string `yaml:"tag" json:"tag"`
	Label string `yaml:"label" json:"label"`
	Icon  string `yaml:"icon" json:"icon"`
}

// Catalog maps persona tags to metadata. Unknown tags resolve to the fallback.
type Catalog struct {
	personas []Persona
	byTag    map[string]Persona
	fallback Persona
}

type catalogFile struct {
	Fallback string    `yaml:"fallback"`
	Personas []Persona `yaml:"personas"`
}

// Default returns the built-in catalog of design personas.
func Default() *Catalog {
	c, err := New([]Persona{
		{Key: KeyLevel, Tag: "레벨 디자이너", Label: "Level Designer", Icon: "map"},
		{Key: KeySystem, Tag: "시스템 디자이너", Label: "System Designer", Icon: "settings"},
		{Key: KeyQuest, Tag: "퀘스트 디자이너", Label: "Quest Designer", Icon: "assignment"},
		{Key: KeyNarrative, Tag: "내러티브 디자이너", Label: "Narrative Designer", Icon: "menu_book"},
		{Key: KeyScenario, Tag: "시나리오 디자이너", Label: "Scenario Designer", Icon: "smart_toy"},
		{Key: KeyGeneral, Tag: "범용", Label: "General", Icon: "build"},
	}, KeyGeneral)
	if err != nil {
		panic("persona: invalid built-in catalog: " + err.Error())
	}
	return c
}

// New builds a catalog. fallbackKey must name one of the personas.
func New(personas []Persona, fallbackKey string) (*Catalog, error) {
	c := &Catalog{byTag: make(map[string]Persona, len(personas))}
	found := false
	for _, p := range personas {
		if p.Key == "" || p.Tag == "" {
			return nil, fmt.Errorf("persona %+v: key and tag are required", p)
		}
		if _, dup := c.byTag[p.Tag]; dup {
			return nil, fmt.Errorf("duplicate persona tag %q", p.Tag)
		}
		if p.Label == "" {
			p.Label = p.Tag
		}
		c.byTag[p.Tag] = p
		c.personas = append(c.personas, p)
		if p.Key == fallbackKey {
			c.fallback = p
			found = true
		}
	}
	if !found {
		return nil, errNoFallback
	}
	return c, nil
}

// LoadFile reads a YAML catalog. An empty path returns the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	if f.Fallback == "" {
		f.Fallback = KeyGeneral
	}
	c, err := New(f.Personas, f.Fallback)
	if err != nil {
		return nil, fmt.Errorf("persona file %s: %w", path, err)
	}
	return c, nil
}

// Resolve returns the persona for tag, or the fallback for unknown tags.
func (c *Catalog) Resolve(tag string) Persona {
	if p, ok := c.byTag[tag]; ok {
		return p
	}
	return c.fallback
}

// Known reports whether tag names a persona in the catalog.
func (c *Catalog) Known(tag string) bool {
	_, ok := c.byTag[tag]
	return ok
}

// ByKey looks a persona up by its key.
func (c *Catalog) ByKey(key string) (Persona, bool) {
	for _, p := range c.personas {
		if p.Key == key {
			return p, true
		}
	}
	return Persona{}, false
}

// Fallback returns the persona used when no persona can be attributed.
func (c *Catalog) Fallback() Persona {
	return c.fallback
}

// All returns the personas in catalog order.
func (c *Catalog) All() []Persona {
	out := make([]Persona, len(c.personas))
	copy(out, c.personas)
	return out
}
