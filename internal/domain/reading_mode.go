package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ReadingMode is a named spread layout: one position label per card.
type ReadingMode struct {
	Name          string   `json:"name"`
	Positions     []string `json:"positions"`
	RequiredCount int      `json:"required_count"`
}

// Catalog is the read-only table of reading modes. Safe for concurrent use.
type Catalog struct {
	modes map[string]ReadingMode
}

func NewCatalog(modes []ReadingMode) (*Catalog, error) {
	c := &Catalog{modes: make(map[string]ReadingMode, len(modes))}
	for _, m := range modes {
		key := normalizeModeName(m.Name)
		if key == "" {
			return nil, fmt.Errorf("reading mode with empty name")
		}
		if len(m.Positions) != m.RequiredCount {
			return nil, fmt.Errorf("reading mode %s: %d positions for %d cards", m.Name, len(m.Positions), m.RequiredCount)
		}
		if _, dup := c.modes[key]; dup {
			return nil, fmt.Errorf("duplicate reading mode %s", m.Name)
		}
		c.modes[key] = ReadingMode{
			Name:          key,
			Positions:     slices.Clone(m.Positions),
			RequiredCount: m.RequiredCount,
		}
	}
	return c, nil
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the built-in spreads.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := NewCatalog(builtinModes)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Resolve looks a mode up by name, ignoring case and surrounding whitespace.
// "Celtic Cross" and "celtic-cross" also resolve to celtic_cross.
func (c *Catalog) Resolve(name string) (ReadingMode, error) {
	key := normalizeModeName(name)
	mode, ok := c.modes[key]
	if !ok {
		mode, ok = c.modes[strings.NewReplacer(" ", "_", "-", "_").Replace(key)]
	}
	if !ok {
		return ReadingMode{}, NewModeNotFoundError(name)
	}
	mode.Positions = slices.Clone(mode.Positions)
	return mode, nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.modes))
	for name := range c.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns copies of every mode, sorted by name.
func (c *Catalog) All() []ReadingMode {
	names := c.Names()
	out := make([]ReadingMode, 0, len(names))
	for _, name := range names {
		m := c.modes[name]
		m.Positions = slices.Clone(m.Positions)
		out = append(out, m)
	}
	return out
}

func normalizeModeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func mode(name string, positions ...string) ReadingMode {
	return ReadingMode{Name: name, Positions: positions, RequiredCount: len(positions)}
}

var builtinModes = []ReadingMode{
	mode("one_card", "Daily Card"),
	mode("three_card", "Past", "Present", "Future"),
	mode("five_card", "Past", "Present", "Future", "Hidden Message or Problem", "Near Future"),
	mode("celtic_cross",
		"Present Situation", "Challenge", "Past Influences", "Future Influences", "Conscious Goal",
		"Unconscious Influence", "Your Attitude", "Environment", "Hopes and Fears", "Final Outcome"),
	mode("relationship", "You", "Your Partner", "Core Issue", "Advice", "Outcome"),
	mode("career", "Current Job", "Strengths", "Weaknesses", "Advice", "Outcome"),
	mode("chakra_alignment",
		"Root Chakra", "Sacral Chakra", "Solar Plexus", "Heart Chakra", "Throat Chakra", "Third Eye", "Crown Chakra"),
	mode("horseshoe",
		"Past", "Present", "Hidden Influences", "Obstacles", "External Influences", "Advice", "Outcome"),
	mode("seven_day_forecast", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"),
	mode("new_moon_intentions", "What to Release", "What to Embrace", "Support Available", "Lesson to Learn", "Outcome"),
	mode("full_moon_insight", "Current State", "What is Illuminated", "What to Let Go", "What to Celebrate", "Next Step"),
}
