// Package harmonize rewrites raw entity names (mostly countries) into the
// canonical region vocabulary. Unmapped names abort the step; deliberately
// dropped names live in per-dataset exclude lists.
package harmonize

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/regions"
)

// Mapping is a per-dataset dictionary from raw names to canonical ones,
// stored as a flat JSON object.
type Mapping map[string]string

// LoadMapping reads a mapping file. A missing file is an empty mapping.
func LoadMapping(path string) (Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Mapping{}, nil
		}
		return nil, fmt.Errorf("load mapping %s: %w", path, err)
	}
	var m Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("load mapping %s: %w", path, err)
	}
	return m, nil
}

// Save writes the mapping with keys in stable order.
func (m Mapping) Save(path string) error {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("save mapping %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("save mapping %s: %w", path, err)
	}
	return nil
}

// LoadExcludeList reads a JSON array of raw names deliberately dropped
// from a dataset (ships, "Not specified", defunct reporting units). A
// missing file is an empty list.
func LoadExcludeList(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load exclude list %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("load exclude list %s: %w", path, err)
	}
	return names, nil
}

// Harmonizer resolves raw names against the canonical region vocabulary,
// a per-dataset mapping, and an exclude list.
type Harmonizer struct {
	canonical  map[string]bool
	candidates []string
	aliases    map[string]string
	folded     map[string]string
	mapping    Mapping
	exclude    map[string]bool
}

// New builds a harmonizer for a region set. mapping and exclude may be
// nil.
func New(set *regions.Set, mapping Mapping, exclude []string) *Harmonizer {
	h := &Harmonizer{
		canonical: map[string]bool{},
		aliases:   set.Aliases(),
		folded:    map[string]string{},
		mapping:   mapping,
		exclude:   map[string]bool{},
	}
	for _, name := range set.Canonical() {
		h.canonical[name] = true
		h.candidates = append(h.candidates, name)
		h.folded[foldName(name)] = name
	}
	for alias, name := range h.aliases {
		h.folded[foldName(alias)] = name
	}
	for _, e := range exclude {
		h.exclude[e] = true
	}
	return h
}

// Canonicalize resolves one raw name. Resolution order: the per-dataset
// mapping, exact canonical names, exact aliases, then a folded
// (lowercased, diacritic-stripped, punctuation-stripped) comparison
// against names and aliases.
func (h *Harmonizer) Canonicalize(raw string) (string, bool) {
	if mapped, ok := h.mapping[raw]; ok {
		return mapped, true
	}
	if h.canonical[raw] {
		return raw, true
	}
	if name, ok := h.aliases[raw]; ok {
		return name, true
	}
	if name, ok := h.folded[foldName(raw)]; ok {
		return name, true
	}
	return "", false
}

// IsExcluded reports whether a raw name is deliberately dropped.
func (h *Harmonizer) IsExcluded(raw string) bool {
	return h.exclude[raw]
}

// Apply rewrites column col of the table to canonical names, dropping
// rows whose raw name is excluded. Any remaining unmapped name is an
// error naming every offender; nothing is written in that case.
func (h *Harmonizer) Apply(t *catalog.Table, col string) (*catalog.Table, error) {
	src, err := t.Column(col)
	if err != nil {
		return nil, fmt.Errorf("harmonize: %w", err)
	}
	if src.DType != catalog.TypeString {
		return nil, fmt.Errorf("harmonize: column %q must be string, is %s", col, src.DType)
	}

	unmapped := map[string]bool{}
	for r := 0; r < t.Len(); r++ {
		raw, ok := src.String(r)
		if !ok {
			unmapped["<missing>"] = true
			continue
		}
		if h.IsExcluded(raw) {
			continue
		}
		if _, ok := h.Canonicalize(raw); !ok {
			unmapped[raw] = true
		}
	}
	if len(unmapped) > 0 {
		names := make([]string, 0, len(unmapped))
		for n := range unmapped {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("harmonize: table %s column %q has %d unmapped names: %s",
			t.Meta.ShortName, col, len(names), strings.Join(names, "; "))
	}

	out := t.Filter(func(r int) bool {
		raw, ok := src.String(r)
		return !ok || !h.IsExcluded(raw)
	})
	dst := out.MustColumn(col)
	for r := 0; r < out.Len(); r++ {
		raw, _ := dst.String(r)
		name, _ := h.Canonicalize(raw)
		if err := dst.Set(r, name); err != nil {
			return nil, fmt.Errorf("harmonize: %w", err)
		}
	}
	return out, nil
}

// Suggest returns up to n canonical names ranked by similarity to raw.
// Fuzzy subsequence matches rank first; when none match, candidates are
// ranked by edit distance instead.
func (h *Harmonizer) Suggest(raw string, n int) []string {
	ranks := fuzzy.RankFindNormalizedFold(raw, h.candidates)
	sort.Sort(ranks)
	var out []string
	for _, r := range ranks {
		out = append(out, r.Target)
		if len(out) == n {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	type scored struct {
		name string
		dist int
	}
	byDist := make([]scored, 0, len(h.candidates))
	folded := foldName(raw)
	for _, c := range h.candidates {
		byDist = append(byDist, scored{name: c, dist: fuzzy.LevenshteinDistance(folded, foldName(c))})
	}
	sort.Slice(byDist, func(i, j int) bool {
		if byDist[i].dist != byDist[j].dist {
			return byDist[i].dist < byDist[j].dist
		}
		return byDist[i].name < byDist[j].name
	})
	for _, s := range byDist {
		out = append(out, s.name)
		if len(out) == n {
			break
		}
	}
	return out
}

// BuildMapping classifies raw names for a mapping skeleton: names the
// harmonizer already resolves land in the mapping, the rest get ranked
// suggestions for an operator to pick from.
func (h *Harmonizer) BuildMapping(rawNames []string, suggestions int) (Mapping, map[string][]string) {
	mapping := Mapping{}
	pending := map[string][]string{}
	for _, raw := range rawNames {
		if h.IsExcluded(raw) {
			continue
		}
		if name, ok := h.Canonicalize(raw); ok {
			mapping[raw] = name
			continue
		}
		pending[raw] = h.Suggest(raw, suggestions)
	}
	return mapping, pending
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName lowers, strips diacritics and punctuation, and collapses
// whitespace so that "Côte d’Ivoire" and "cote divoire" compare equal.
func foldName(s string) string {
	if folded, _, err := transform.String(foldTransform, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
