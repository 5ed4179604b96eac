// Package service contains the business logic of the station explorer: the
// station lookups the API serves and the map sessions the pages drive.
package service

import (
	"fmt"
	"net/url"

	"github.com/joeblew999/plat-metro/internal/station"
)

// Navigation modes carried in station page URLs.
const (
	ModeRandom = "random"
	ModeLine   = "line"
	ModeSearch = "search"
)

// Neighbors is the previous and next station of a station along a line.
type Neighbors struct {
	Line string           `json:"line" doc:"Line name"`
	Prev *station.Station `json:"prev,omitempty" doc:"Previous station, absent at the line start"`
	Next *station.Station `json:"next,omitempty" doc:"Next station, absent at the line end"`
}

// LineSummary is a line with its color resolved and its station count.
type LineSummary struct {
	Name     string `json:"name" doc:"Line name" example:"2号线"`
	Color    string `json:"color" doc:"Line color (CSS)" example:"#006098"`
	Stations int    `json:"stations" doc:"Number of stations on the line"`
}

// StationService exposes the station catalog to handlers.
type StationService struct {
	catalog *station.Catalog
}

// NewStationService creates a station service over catalog.
func NewStationService(catalog *station.Catalog) *StationService {
	return &StationService{catalog: catalog}
}

// Catalog returns the underlying catalog.
func (s *StationService) Catalog() *station.Catalog {
	return s.catalog
}

// List returns one page of stations, filtered by q when non-empty, and the
// total number of matches.
func (s *StationService) List(q string, offset, limit int) ([]station.Station, int) {
	var all []station.Station
	if q != "" {
		all = s.catalog.Search(q)
	} else {
		all = s.catalog.All()
	}
	total := len(all)
	if offset >= total {
		return []station.Station{}, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total
}

// Get returns a station by ID.
func (s *StationService) Get(id int) (station.Station, error) {
	return s.catalog.Get(id)
}

// Random returns a random station.
func (s *StationService) Random() (station.Station, error) {
	return s.catalog.Random()
}

// Suggest returns search-box suggestions for q.
func (s *StationService) Suggest(q string) []station.Station {
	return s.catalog.Suggest(q)
}

// Search returns every station matching q.
func (s *StationService) Search(q string) []station.Station {
	return s.catalog.Search(q)
}

// Neighbors returns the stations around id on line.
func (s *StationService) Neighbors(id int, line string) (Neighbors, error) {
	st, err := s.catalog.Get(id)
	if err != nil {
		return Neighbors{}, err
	}
	if !s.catalog.HasLine(line) {
		return Neighbors{}, fmt.Errorf("line %q: %w", line, station.ErrNotFound)
	}
	if !onLine(st, line) {
		return Neighbors{}, fmt.Errorf("station %d not on line %q: %w", id, line, station.ErrNotFound)
	}

	n := Neighbors{Line: line}
	if p, ok := s.catalog.Prev(id, line); ok {
		n.Prev = &p
	}
	if nx, ok := s.catalog.Next(id, line); ok {
		n.Next = &nx
	}
	return n, nil
}

// Lines returns every line with its color and size.
func (s *StationService) Lines() []LineSummary {
	lines := s.catalog.Lines()
	out := make([]LineSummary, len(lines))
	for i, l := range lines {
		out[i] = LineSummary{
			Name:     l.Name,
			Color:    s.catalog.LineColor(l.Name),
			Stations: len(s.catalog.ByLine(l.Name)),
		}
	}
	return out
}

// LineStations returns the stations of line in order.
func (s *StationService) LineStations(line string) ([]station.Station, error) {
	if !s.catalog.HasLine(line) {
		return nil, fmt.Errorf("line %q: %w", line, station.ErrNotFound)
	}
	return s.catalog.ByLine(line), nil
}

// LineColor returns the CSS color of line.
func (s *StationService) LineColor(line string) string {
	return s.catalog.LineColor(line)
}

// StationURL builds the station page URL for a navigation mode.
func StationURL(id int, mode, line string) string {
	u := fmt.Sprintf("/station?id=%d&mode=%s", id, mode)
	if line != "" {
		u += "&line=" + url.QueryEscape(line)
	}
	return u
}

func onLine(s station.Station, line string) bool {
	for _, l := range s.Lines {
		if l == line {
			return true
		}
	}
	return false
}
