// Package regions defines the canonical region table (countries,
// continents, aggregates, income groups) and the engine that appends
// aggregate rows to country-level tables.
package regions

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yml
var defaultRegionsYAML []byte

// Region types.
const (
	TypeCountry     = "country"
	TypeContinent   = "continent"
	TypeAggregate   = "aggregate"
	TypeIncomeGroup = "income_group"
)

// Region is one entry of the region definition table. Composite regions
// (continents, aggregates, income groups) list their members by code;
// member lists may reference other composites and are resolved
// transitively.
type Region struct {
	Code         string   `yaml:"code"`
	Name         string   `yaml:"name"`
	RegionType   string   `yaml:"region_type"`
	Members      []string `yaml:"members,omitempty"`
	Aliases      []string `yaml:"aliases,omitempty"`
	IsHistorical bool     `yaml:"is_historical,omitempty"`
	Successors   []string `yaml:"successors,omitempty"`
}

// Set is a validated region table indexed by code and canonical name.
type Set struct {
	order  []string
	byCode map[string]*Region
	byName map[string]*Region
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// DefaultSet parses the embedded region table. The result is shared;
// callers must not mutate it.
func DefaultSet() (*Set, error) {
	defaultOnce.Do(func() {
		var rows []Region
		if err := yaml.Unmarshal(defaultRegionsYAML, &rows); err != nil {
			defaultErr = fmt.Errorf("parse embedded regions: %w", err)
			return
		}
		defaultSet, defaultErr = NewSet(rows)
	})
	return defaultSet, defaultErr
}

// NewSet validates a region table: codes and names must be unique, every
// member and successor must resolve, and membership must be acyclic.
func NewSet(rows []Region) (*Set, error) {
	s := &Set{
		byCode: make(map[string]*Region, len(rows)),
		byName: make(map[string]*Region, len(rows)),
	}
	for i := range rows {
		r := &rows[i]
		switch r.RegionType {
		case TypeCountry, TypeContinent, TypeAggregate, TypeIncomeGroup:
		default:
			return nil, fmt.Errorf("region %s: unknown region_type %q", r.Code, r.RegionType)
		}
		if r.Code == "" || r.Name == "" {
			return nil, fmt.Errorf("region at position %d: code and name are required", i)
		}
		if _, dup := s.byCode[r.Code]; dup {
			return nil, fmt.Errorf("duplicate region code %q", r.Code)
		}
		if _, dup := s.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate region name %q", r.Name)
		}
		s.byCode[r.Code] = r
		s.byName[r.Name] = r
		s.order = append(s.order, r.Code)
	}
	for _, code := range s.order {
		r := s.byCode[code]
		for _, m := range r.Members {
			if _, ok := s.byCode[m]; !ok {
				return nil, fmt.Errorf("region %s: unknown member %q", r.Code, m)
			}
		}
		for _, suc := range r.Successors {
			if _, ok := s.byCode[suc]; !ok {
				return nil, fmt.Errorf("region %s: unknown successor %q", r.Code, suc)
			}
		}
	}
	for _, code := range s.order {
		if _, err := s.memberCodes(code, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ByCode returns the region with the given code.
func (s *Set) ByCode(code string) (*Region, bool) {
	r, ok := s.byCode[code]
	return r, ok
}

// ByName returns the region with the given canonical name.
func (s *Set) ByName(name string) (*Region, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Canonical returns every canonical region name in table order, countries
// and composites alike. This is the target vocabulary of harmonization.
func (s *Set) Canonical() []string {
	out := make([]string, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.byCode[code].Name)
	}
	return out
}

// Aliases maps every alias to its canonical name.
func (s *Set) Aliases() map[string]string {
	out := map[string]string{}
	for _, code := range s.order {
		r := s.byCode[code]
		for _, a := range r.Aliases {
			out[a] = r.Name
		}
	}
	return out
}

// Members returns the canonical names of the countries belonging to a
// composite region, resolved transitively, in table order. Historical
// countries are included only when includeHistorical is set.
func (s *Set) Members(name string, includeHistorical bool) ([]string, error) {
	r, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown region %q", name)
	}
	codes, err := s.memberCodes(r.Code, map[string]bool{})
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, code := range codes {
		m := s.byCode[code]
		if m.RegionType != TypeCountry || seen[code] {
			continue
		}
		if m.IsHistorical && !includeHistorical {
			continue
		}
		seen[code] = true
		out = append(out, m.Name)
	}
	return out, nil
}

func (s *Set) memberCodes(code string, visiting map[string]bool) ([]string, error) {
	if visiting[code] {
		return nil, fmt.Errorf("region %s: membership cycle", code)
	}
	visiting[code] = true
	defer delete(visiting, code)

	r := s.byCode[code]
	var out []string
	for _, m := range r.Members {
		member := s.byCode[m]
		if member.RegionType == TypeCountry {
			out = append(out, m)
			continue
		}
		sub, err := s.memberCodes(m, visiting)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// Composites returns the names of all non-country regions of the given
// types, in table order. With no types given, all composites are
// returned.
func (s *Set) Composites(types ...string) []string {
	want := map[string]bool{}
	for _, t := range types {
		want[t] = true
	}
	var out []string
	for _, code := range s.order {
		r := s.byCode[code]
		if r.RegionType == TypeCountry {
			continue
		}
		if len(want) > 0 && !want[r.RegionType] {
			continue
		}
		out = append(out, r.Name)
	}
	return out
}

// IncomeGroup returns the income group a country belongs to.
func (s *Set) IncomeGroup(country string) (string, bool) {
	r, ok := s.byName[country]
	if !ok || r.RegionType != TypeCountry {
		return "", false
	}
	for _, code := range s.order {
		g := s.byCode[code]
		if g.RegionType != TypeIncomeGroup {
			continue
		}
		for _, m := range g.Members {
			if m == r.Code {
				return g.Name, true
			}
		}
	}
	return "", false
}

// Successors returns the canonical names of the countries that succeeded
// a historical one.
func (s *Set) Successors(country string) ([]string, error) {
	r, ok := s.byName[country]
	if !ok {
		return nil, fmt.Errorf("unknown region %q", country)
	}
	out := make([]string, 0, len(r.Successors))
	for _, code := range r.Successors {
		out = append(out, s.byCode[code].Name)
	}
	sort.Strings(out)
	return out, nil
}

// DefaultAggregateRegions is the standard list appended by garden steps:
// the six continents plus World.
func (s *Set) DefaultAggregateRegions() []string {
	var out []string
	for _, code := range s.order {
		r := s.byCode[code]
		if r.RegionType == TypeContinent || (r.RegionType == TypeAggregate && r.Name == "World") {
			out = append(out, r.Name)
		}
	}
	return out
}
