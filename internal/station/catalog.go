// Package station holds the subway station dataset: stations, the lines
// serving them and the lookups the explorer pages navigate with.
package station

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxSuggestions caps the suggestion list shown under the search box.
const MaxSuggestions = 50

// DefaultLineColor is used for lines without a declared color.
const DefaultLineColor = "#666"

// ErrNotFound is returned when a station or line does not exist.
var ErrNotFound = errors.New("not found")

// Station is one subway station.
type Station struct {
	ID      int      `json:"id" yaml:"id" doc:"Station ID" example:"42"`
	Name    string   `json:"name" yaml:"name" doc:"Station name" example:"东直门"`
	Lines   []string `json:"lines" yaml:"lines" doc:"Lines serving the station, in display order"`
	Origin  string   `json:"origin,omitempty" yaml:"origin" doc:"Where the name comes from"`
	History string   `json:"history,omitempty" yaml:"history" doc:"Historical notes"`
}

// Line is a subway line. Stations, when present, is the ordered station
// sequence along the line; otherwise line order is dataset order.
type Line struct {
	Name     string `json:"name" yaml:"name" doc:"Line name" example:"2号线"`
	Color    string `json:"color" yaml:"color" doc:"Line color (CSS)" example:"#004A9D"`
	Stations []int  `json:"stationIds,omitempty" yaml:"stations" doc:"Station IDs in line order"`
}

// dataset is the on-disk layout of the catalog file.
type dataset struct {
	Lines    []Line    `yaml:"lines"`
	Stations []Station `yaml:"stations"`
}

// Catalog is an immutable, validated station dataset.
type Catalog struct {
	stations []Station
	byID     map[int]int
	names    map[string]struct{}
	lines    []Line
	lineIdx  map[string]int
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode station catalog: %w", err)
	}
	return New(ds.Lines, ds.Stations)
}

// New builds a catalog from lines and stations. Station ids must be positive
// and unique, names non-empty, and every line a station lists must be
// declared.
func New(lines []Line, stations []Station) (*Catalog, error) {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[int]int, len(stations)),
		names:    make(map[string]struct{}, len(stations)),
		lines:    make([]Line, 0, len(lines)),
		lineIdx:  make(map[string]int, len(lines)),
	}

	for _, l := range lines {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, errors.New("line with empty name")
		}
		if _, dup := c.lineIdx[l.Name]; dup {
			return nil, fmt.Errorf("line %q declared twice", l.Name)
		}
		c.lineIdx[l.Name] = len(c.lines)
		c.lines = append(c.lines, l)
	}

	for _, s := range stations {
		s.Name = strings.TrimSpace(s.Name)
		switch {
		case s.ID <= 0:
			return nil, fmt.Errorf("station %q: id must be positive, got %d", s.Name, s.ID)
		case s.Name == "":
			return nil, fmt.Errorf("station %d: empty name", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("station %d: duplicate id", s.ID)
		}
		for _, line := range s.Lines {
			if _, ok := c.lineIdx[line]; !ok {
				return nil, fmt.Errorf("station %d (%s): undeclared line %q", s.ID, s.Name, line)
			}
		}
		c.byID[s.ID] = len(c.stations)
		c.names[s.Name] = struct{}{}
		c.stations = append(c.stations, s)
	}

	for _, l := range c.lines {
		seen := make(map[int]bool, len(l.Stations))
		for _, id := range l.Stations {
			i, ok := c.byID[id]
			if !ok {
				return nil, fmt.Errorf("line %q: unknown station %d", l.Name, id)
			}
			if seen[id] {
				return nil, fmt.Errorf("line %q: station %d listed twice", l.Name, id)
			}
			if !c.stations[i].onLine(l.Name) {
				return nil, fmt.Errorf("line %q: station %d does not list the line", l.Name, id)
			}
			seen[id] = true
		}
	}
	return c, nil
}

// Len returns the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}

// All returns every station in dataset order.
func (c *Catalog) All() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Get returns the station with id.
func (c *Catalog) Get(id int) (Station, error) {
	i, ok := c.byID[id]
	if !ok {
		return Station{}, fmt.Errorf("station %d: %w", id, ErrNotFound)
	}
	return c.stations[i], nil
}

// Random returns a uniformly chosen station.
func (c *Catalog) Random() (Station, error) {
	if len(c.stations) == 0 {
		return Station{}, fmt.Errorf("random station: %w", ErrNotFound)
	}
	return c.stations[rand.IntN(len(c.stations))], nil
}

// ByLine returns the stations served by line, in line order.
func (c *Catalog) ByLine(line string) []Station {
	li, ok := c.lineIdx[line]
	if !ok {
		return nil
	}
	if seq := c.lines[li].Stations; len(seq) > 0 {
		out := make([]Station, len(seq))
		for i, id := range seq {
			out[i] = c.stations[c.byID[id]]
		}
		return out
	}

	var out []Station
	for _, s := range c.stations {
		if s.onLine(line) {
			out = append(out, s)
		}
	}
	return out
}

// Search returns stations whose name contains q, ignoring case.
func (c *Catalog) Search(q string) []Station {
	return c.match(q, 0)
}

// Suggest is Search capped at MaxSuggestions.
func (c *Catalog) Suggest(q string) []Station {
	return c.match(q, MaxSuggestions)
}

func (c *Catalog) match(q string, limit int) []Station {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var out []Station
	for _, s := range c.stations {
		if strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// Lines returns the declared lines in dataset order.
func (c *Catalog) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		l.Stations = append([]int(nil), l.Stations...)
		out[i] = l
	}
	return out
}

// HasLine reports whether line is declared.
func (c *Catalog) HasLine(line string) bool {
	_, ok := c.lineIdx[line]
	return ok
}

// LineColor returns the CSS color of line, or DefaultLineColor.
func (c *Catalog) LineColor(line string) string {
	if i, ok := c.lineIdx[line]; ok && c.lines[i].Color != "" {
		return c.lines[i].Color
	}
	return DefaultLineColor
}

// Prev returns the station before id on line. ok is false at the line's
// first station or when id is not on line.
func (c *Catalog) Prev(id int, line string) (Station, bool) {
	return c.neighbor(id, line, -1)
}

// Next returns the station after id on line. ok is false at the line's
// last station or when id is not on line.
func (c *Catalog) Next(id int, line string) (Station, bool) {
	return c.neighbor(id, line, 1)
}

func (c *Catalog) neighbor(id int, line string, step int) (Station, bool) {
	onLine := c.ByLine(line)
	for i, s := range onLine {
		if s.ID != id {
			continue
		}
		j := i + step
		if j < 0 || j >= len(onLine) {
			return Station{}, false
		}
		return onLine[j], true
	}
	return Station{}, false
}

// Names returns all station names in dataset order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.stations))
	for i, s := range c.stations {
		out[i] = s.Name
	}
	return out
}

// HasName reports whether name is a station name. It lets the catalog serve
// as the map controller's name set.
func (c *Catalog) HasName(name string) bool {
	_, ok := c.names[name]
	return ok
}

func (s Station) onLine(line string) bool {
	for _, l := range s.Lines {
		if l == line {
			return true
		}
	}
	return false
}
