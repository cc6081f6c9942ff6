// Package collection models the explorer view configuration that ships with
// exported datasets: the dimensions a reader can pick from and the views
// those picks resolve to.
package collection

import (
	"fmt"
	"sort"
	"strings"
)

// Choice is one selectable value of a dimension.
type Choice struct {
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name" yaml:"name"`
}

// Dimension is one axis of an explorer, e.g. "metric" or "region type".
type Dimension struct {
	Slug    string   `json:"slug" yaml:"slug"`
	Name    string   `json:"name" yaml:"name"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// HasChoice reports whether the dimension offers the given choice slug.
func (d Dimension) HasChoice(slug string) bool {
	for _, c := range d.Choices {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// View binds one choice per dimension to the indicator columns shown for
// that combination.
type View struct {
	Dimensions map[string]string `json:"dimensions" yaml:"dimensions"`
	Indicators []string          `json:"indicators" yaml:"indicators"`
}

// key renders the dimension bindings in a stable order so duplicate views
// can be detected regardless of map iteration.
func (v View) key() string {
	slugs := make([]string, 0, len(v.Dimensions))
	for s := range v.Dimensions {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	parts := make([]string, len(slugs))
	for i, s := range slugs {
		parts[i] = s + "=" + v.Dimensions[s]
	}
	return strings.Join(parts, ",")
}

// Collection is the full explorer configuration written next to an export
// bundle as collection.json.
type Collection struct {
	Title      string      `json:"title,omitempty" yaml:"title,omitempty"`
	Dimensions []Dimension `json:"dimensions" yaml:"dimensions"`
	Views      []View      `json:"views" yaml:"views"`
}

// Validate checks the collection's internal consistency: slugs and names
// unique, every view binding a known dimension to a known choice, no two
// views claiming the same combination.
func (c *Collection) Validate() error {
	dimBySlug := map[string]Dimension{}
	names := map[string]bool{}
	for _, d := range c.Dimensions {
		if d.Slug == "" {
			return fmt.Errorf("collection: dimension %q has no slug", d.Name)
		}
		if _, ok := dimBySlug[d.Slug]; ok {
			return fmt.Errorf("collection: duplicate dimension slug %q", d.Slug)
		}
		if names[d.Name] {
			return fmt.Errorf("collection: duplicate dimension name %q", d.Name)
		}
		dimBySlug[d.Slug] = d
		names[d.Name] = true

		choiceSlugs := map[string]bool{}
		for _, ch := range d.Choices {
			if ch.Slug == "" {
				return fmt.Errorf("collection: dimension %q: choice %q has no slug", d.Slug, ch.Name)
			}
			if choiceSlugs[ch.Slug] {
				return fmt.Errorf("collection: dimension %q: duplicate choice slug %q", d.Slug, ch.Slug)
			}
			choiceSlugs[ch.Slug] = true
		}
	}

	seen := map[string]bool{}
	for i, v := range c.Views {
		for slug, choice := range v.Dimensions {
			d, ok := dimBySlug[slug]
			if !ok {
				return fmt.Errorf("collection: view %d references unknown dimension %q", i, slug)
			}
			if !d.HasChoice(choice) {
				return fmt.Errorf("collection: view %d: dimension %q has no choice %q", i, slug, choice)
			}
		}
		if len(v.Dimensions) != len(c.Dimensions) {
			return fmt.Errorf("collection: view %d binds %d of %d dimensions", i, len(v.Dimensions), len(c.Dimensions))
		}
		k := v.key()
		if seen[k] {
			return fmt.Errorf("collection: duplicate view (%s)", k)
		}
		seen[k] = true
	}
	return nil
}

// ToMap renders the collection as the generic map shape used in YAML/JSON
// explorer configs.
func (c *Collection) ToMap() map[string]any {
	dims := make([]any, len(c.Dimensions))
	for i, d := range c.Dimensions {
		choices := make([]any, len(d.Choices))
		for j, ch := range d.Choices {
			choices[j] = map[string]any{"slug": ch.Slug, "name": ch.Name}
		}
		dims[i] = map[string]any{"slug": d.Slug, "name": d.Name, "choices": choices}
	}
	views := make([]any, len(c.Views))
	for i, v := range c.Views {
		binds := make(map[string]any, len(v.Dimensions))
		for slug, choice := range v.Dimensions {
			binds[slug] = choice
		}
		inds := make([]any, len(v.Indicators))
		for j, ind := range v.Indicators {
			inds[j] = ind
		}
		views[i] = map[string]any{"dimensions": binds, "indicators": inds}
	}
	out := map[string]any{"dimensions": dims, "views": views}
	if c.Title != "" {
		out["title"] = c.Title
	}
	return out
}

// FromMap parses the generic map shape back into a validated Collection.
func FromMap(m map[string]any) (*Collection, error) {
	c := &Collection{}
	if title, ok := m["title"].(string); ok {
		c.Title = title
	}
	dims, err := anySlice(m, "dimensions")
	if err != nil {
		return nil, err
	}
	for _, raw := range dims {
		dm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("collection: dimension is not a map: %v", raw)
		}
		d := Dimension{Slug: stringField(dm, "slug"), Name: stringField(dm, "name")}
		choices, err := anySlice(dm, "choices")
		if err != nil {
			return nil, fmt.Errorf("collection: dimension %q: %w", d.Slug, err)
		}
		for _, rawCh := range choices {
			cm, ok := rawCh.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("collection: dimension %q: choice is not a map", d.Slug)
			}
			d.Choices = append(d.Choices, Choice{Slug: stringField(cm, "slug"), Name: stringField(cm, "name")})
		}
		c.Dimensions = append(c.Dimensions, d)
	}
	views, err := anySlice(m, "views")
	if err != nil {
		return nil, err
	}
	for _, raw := range views {
		vm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("collection: view is not a map: %v", raw)
		}
		v := View{Dimensions: map[string]string{}}
		if binds, ok := vm["dimensions"].(map[string]any); ok {
			for slug, choice := range binds {
				s, ok := choice.(string)
				if !ok {
					return nil, fmt.Errorf("collection: view dimension %q is not a string", slug)
				}
				v.Dimensions[slug] = s
			}
		}
		inds, err := anySlice(vm, "indicators")
		if err != nil {
			return nil, fmt.Errorf("collection: view: %w", err)
		}
		for _, ind := range inds {
			s, ok := ind.(string)
			if !ok {
				return nil, fmt.Errorf("collection: indicator is not a string: %v", ind)
			}
			v.Indicators = append(v.Indicators, s)
		}
		c.Views = append(c.Views, v)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func anySlice(m map[string]any, field string) ([]any, error) {
	raw, ok := m[field]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q is not a list", field)
	}
	return s, nil
}

func stringField(m map[string]any, field string) string {
	s, _ := m[field].(string)
	return s
}
