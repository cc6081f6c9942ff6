package regions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/terracehq/terrace/pkg/catalog"
)

// AggregateOptions configures AddAggregates.
type AggregateOptions struct {
	// Regions to append, by canonical name. Defaults to the six
	// continents plus World.
	Regions []string

	// CountryCol and YearCol name the entity and time columns. Default
	// "country" and "year".
	CountryCol string
	YearCol    string

	// Aggregations overrides the per-column aggregation; columns not
	// listed are summed. Columns listed in WeightedMeanCols are averaged
	// weighted by population instead and require Population.
	Aggregations     map[string]catalog.AggFunc
	WeightedMeanCols []string

	// Population is a table keyed (country, year) with a "population"
	// column, used for weighted means.
	Population    *catalog.Table
	PopulationCol string

	// MinNumValues suppresses an aggregate value when fewer member
	// countries report. MinFracValues does the same as a fraction of the
	// member countries the table covers at all. NaNTolerance is the
	// complementary form of MinFracValues (maximum missing fraction);
	// setting both is an error.
	MinNumValues  int
	MinFracValues float64
	NaNTolerance  float64

	// IncludeHistorical lets historical countries (USSR, Yugoslavia...)
	// contribute to aggregates. Harmonized data never carries a
	// historical country and its successors for the same year, so no
	// value is counted twice either way.
	IncludeHistorical bool
}

func (o *AggregateOptions) setDefaults(s *Set) error {
	if o.CountryCol == "" {
		o.CountryCol = "country"
	}
	if o.YearCol == "" {
		o.YearCol = "year"
	}
	if len(o.Regions) == 0 {
		o.Regions = s.DefaultAggregateRegions()
	}
	if o.PopulationCol == "" {
		o.PopulationCol = "population"
	}
	if o.NaNTolerance != 0 && o.MinFracValues != 0 {
		return fmt.Errorf("add aggregates: set NaNTolerance or MinFracValues, not both")
	}
	if o.NaNTolerance < 0 || o.NaNTolerance > 1 || o.MinFracValues < 0 || o.MinFracValues > 1 {
		return fmt.Errorf("add aggregates: fraction thresholds must lie in [0, 1]")
	}
	if o.NaNTolerance != 0 {
		o.MinFracValues = 1 - o.NaNTolerance
	}
	return nil
}

// minFrac threshold uses the member countries the table covers at all as
// its denominator, so a dataset covering only part of a region is judged
// against its own coverage rather than the full member list.

// AddAggregates returns a new table holding every original country row
// unchanged plus one row per (region, year, ...) for each requested
// region, aggregating the member countries' values column by column.
// Pre-existing rows whose country equals a requested region are replaced.
// Aggregated values below the reporting thresholds come out missing.
func (s *Set) AddAggregates(t *catalog.Table, opts AggregateOptions) (*catalog.Table, error) {
	if err := opts.setDefaults(s); err != nil {
		return nil, err
	}
	countrySeries, err := t.Column(opts.CountryCol)
	if err != nil {
		return nil, fmt.Errorf("add aggregates: %w", err)
	}
	if countrySeries.DType != catalog.TypeString {
		return nil, fmt.Errorf("add aggregates: column %q must be string, is %s", opts.CountryCol, countrySeries.DType)
	}
	if _, err := t.Column(opts.YearCol); err != nil {
		return nil, fmt.Errorf("add aggregates: %w", err)
	}

	groupCols := []string{opts.YearCol}
	for _, k := range t.Meta.PrimaryKey {
		if k != opts.CountryCol && k != opts.YearCol {
			groupCols = append(groupCols, k)
		}
	}
	groupSet := map[string]bool{}
	for _, g := range groupCols {
		groupSet[g] = true
	}

	type valueCol struct {
		name string
		agg  catalog.AggFunc
	}
	weighted := map[string]bool{}
	for _, c := range opts.WeightedMeanCols {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("add aggregates: no column %q", c)
		}
		if opts.Population == nil {
			return nil, fmt.Errorf("add aggregates: weighted mean for %q needs a population table", c)
		}
		weighted[c] = true
	}
	var valueCols []valueCol
	for _, name := range t.Columns() {
		if name == opts.CountryCol || groupSet[name] {
			continue
		}
		col := t.MustColumn(name)
		if col.DType != catalog.TypeInt && col.DType != catalog.TypeFloat {
			continue
		}
		agg := catalog.AggSum
		if a, ok := opts.Aggregations[name]; ok {
			agg = a
		}
		valueCols = append(valueCols, valueCol{name: name, agg: agg})
	}
	if len(valueCols) == 0 {
		return nil, fmt.Errorf("add aggregates: table %s has no numeric columns to aggregate", t.Meta.ShortName)
	}

	var weights map[string]float64
	if opts.Population != nil {
		weights, err = populationWeights(opts.Population, opts.CountryCol, opts.YearCol, opts.PopulationCol)
		if err != nil {
			return nil, fmt.Errorf("add aggregates: %w", err)
		}
	}

	regionSet := map[string]bool{}
	for _, r := range opts.Regions {
		if _, ok := s.byName[r]; !ok {
			return nil, fmt.Errorf("add aggregates: unknown region %q", r)
		}
		regionSet[r] = true
	}
	base := t.Filter(func(r int) bool {
		c, ok := countrySeries.String(r)
		return !ok || !regionSet[c]
	})

	out := base.Clone()
	// Means land in float columns even when the source column is int.
	for _, vc := range valueCols {
		needsFloat := vc.agg == catalog.AggMean || vc.agg == catalog.AggMedian || weighted[vc.name]
		if needsFloat && out.MustColumn(vc.name).DType == catalog.TypeInt {
			widenToFloat(out.MustColumn(vc.name))
		}
	}

	baseCountry := base.MustColumn(opts.CountryCol)
	groupSeries := make([]*catalog.Series, len(groupCols))
	for i, g := range groupCols {
		groupSeries[i] = base.MustColumn(g)
	}
	yearSeries := base.MustColumn(opts.YearCol)

	for _, regionName := range opts.Regions {
		memberList, err := s.Members(regionName, opts.IncludeHistorical)
		if err != nil {
			return nil, fmt.Errorf("add aggregates: %w", err)
		}
		members := map[string]bool{}
		for _, m := range memberList {
			members[m] = true
		}

		covered := map[string]bool{}
		type group struct {
			key    string
			row    int
			values map[string][]memberCell
		}
		var groups []*group
		groupAt := map[string]*group{}

		for r := 0; r < base.Len(); r++ {
			country, ok := baseCountry.String(r)
			if !ok || !members[country] {
				continue
			}
			covered[country] = true
			key := groupKeyAt(groupSeries, r)
			g, ok := groupAt[key]
			if !ok {
				g = &group{key: key, row: r, values: map[string][]memberCell{}}
				groupAt[key] = g
				groups = append(groups, g)
			}
			for _, vc := range valueCols {
				if v, ok := base.MustColumn(vc.name).Float(r); ok {
					g.values[vc.name] = append(g.values[vc.name], memberCell{value: v, country: country, year: yearSeries.At(r)})
				}
			}
		}

		coverage := len(covered)
		for _, g := range groups {
			rec := catalog.Record{opts.CountryCol: regionName}
			for i, gc := range groupCols {
				rec[gc] = groupSeries[i].At(g.row)
			}
			for _, vc := range valueCols {
				cells := g.values[vc.name]
				n := len(cells)
				if n == 0 ||
					(opts.MinNumValues > 0 && n < opts.MinNumValues) ||
					(opts.MinFracValues > 0 && coverage > 0 && float64(n)/float64(coverage) < opts.MinFracValues) {
					continue
				}
				var v float64
				if weighted[vc.name] {
					wv, ok := weightedMean(cells, weights)
					if !ok {
						continue
					}
					v = wv
				} else {
					vals := make([]float64, n)
					for i, c := range cells {
						vals[i] = c.value
					}
					v = reduce(vals, vc.agg)
				}
				rec[vc.name] = v
			}
			if err := out.AppendRecord(rec); err != nil {
				return nil, fmt.Errorf("add aggregates: region %s: %w", regionName, err)
			}
		}
	}

	if len(out.Meta.PrimaryKey) > 0 {
		if err := out.VerifyPrimaryKey(); err != nil {
			return nil, fmt.Errorf("add aggregates: %w", err)
		}
	}
	return out, nil
}

func reduce(vals []float64, agg catalog.AggFunc) float64 {
	switch agg {
	case catalog.AggMean:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	case catalog.AggMedian:
		sorted := append([]float64{}, vals...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid]
		}
		return (sorted[mid-1] + sorted[mid]) / 2
	case catalog.AggMin:
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case catalog.AggMax:
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	default:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	}
}

func widenToFloat(s *catalog.Series) {
	s.DType = catalog.TypeFloat
	for i, v := range s.Values {
		if n, ok := v.(int64); ok {
			s.Values[i] = float64(n)
		}
	}
}

func groupKeyAt(cols []*catalog.Series, r int) string {
	parts := make([]string, len(cols))
	for i, s := range cols {
		v := s.At(r)
		if v == nil {
			parts[i] = "<null>"
			continue
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "|")
}

func populationWeights(pop *catalog.Table, countryCol, yearCol, popCol string) (map[string]float64, error) {
	cs, err := pop.Column(countryCol)
	if err != nil {
		return nil, fmt.Errorf("population table: %w", err)
	}
	ys, err := pop.Column(yearCol)
	if err != nil {
		return nil, fmt.Errorf("population table: %w", err)
	}
	ps, err := pop.Column(popCol)
	if err != nil {
		return nil, fmt.Errorf("population table: %w", err)
	}
	out := make(map[string]float64, pop.Len())
	for r := 0; r < pop.Len(); r++ {
		c, ok := cs.String(r)
		if !ok {
			continue
		}
		p, ok := ps.Float(r)
		if !ok {
			continue
		}
		out[weightKey(c, ys.At(r))] = p
	}
	return out, nil
}

func weightKey(country string, year any) string {
	return fmt.Sprintf("%s|%v", country, year)
}

// memberCell is one member country's value inside a group, carrying what
// the weighted mean needs to look up its weight.
type memberCell struct {
	value   float64
	country string
	year    any
}

func weightedMean(cells []memberCell, weights map[string]float64) (float64, bool) {
	var num, den float64
	for _, c := range cells {
		w, ok := weights[weightKey(c.country, c.year)]
		if !ok || w <= 0 {
			continue
		}
		num += c.value * w
		den += w
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// PerCapitaOptions configures AddPerCapita.
type PerCapitaOptions struct {
	CountryCol    string
	YearCol       string
	PopulationCol string
	Suffix        string
}

// AddPerCapita adds, for each listed column, a new column dividing it by
// the population matched on (country, year). New columns are named
// <col><suffix> (default "_per_capita"); a column with a unit gets
// "<unit> per capita".
func AddPerCapita(t *catalog.Table, cols []string, population *catalog.Table, opts PerCapitaOptions) error {
	if opts.CountryCol == "" {
		opts.CountryCol = "country"
	}
	if opts.YearCol == "" {
		opts.YearCol = "year"
	}
	if opts.PopulationCol == "" {
		opts.PopulationCol = "population"
	}
	if opts.Suffix == "" {
		opts.Suffix = "_per_capita"
	}
	weights, err := populationWeights(population, opts.CountryCol, opts.YearCol, opts.PopulationCol)
	if err != nil {
		return fmt.Errorf("add per capita: %w", err)
	}
	popMeta := population.MustColumn(opts.PopulationCol).Meta
	cs, err := t.Column(opts.CountryCol)
	if err != nil {
		return fmt.Errorf("add per capita: %w", err)
	}
	ys, err := t.Column(opts.YearCol)
	if err != nil {
		return fmt.Errorf("add per capita: %w", err)
	}
	for _, col := range cols {
		src, err := t.Column(col)
		if err != nil {
			return fmt.Errorf("add per capita: %w", err)
		}
		if src.DType != catalog.TypeInt && src.DType != catalog.TypeFloat {
			return fmt.Errorf("add per capita: column %q is not numeric", col)
		}
		ns := catalog.NewSeries(col+opts.Suffix, catalog.TypeFloat)
		ns.Meta = src.Meta.Clone()
		ns.Meta.Title = ""
		ns.Meta.ProcessingLevel = catalog.ProcessingMajor
		ns.Meta.Origins = catalog.MergeOrigins(src.Meta.Origins, popMeta.Origins)
		if src.Meta.Unit != "" {
			ns.Meta.Unit = src.Meta.Unit + " per capita"
			ns.Meta.ShortUnit = ""
		}
		ns.Values = make([]any, t.Len())
		for r := 0; r < t.Len(); r++ {
			v, ok := src.Float(r)
			if !ok {
				continue
			}
			country, ok := cs.String(r)
			if !ok {
				continue
			}
			w, ok := weights[weightKey(country, ys.At(r))]
			if !ok || w == 0 {
				continue
			}
			ns.Values[r] = v / w
		}
		if err := t.AddSeries(ns); err != nil {
			return fmt.Errorf("add per capita: %w", err)
		}
	}
	return nil
}

// SumViolation is one inconsistency between a stored aggregate value and
// the sum of its member countries.
type SumViolation struct {
	Region    string
	Column    string
	GroupKey  string
	Aggregate float64
	MemberSum float64
}

func (v SumViolation) String() string {
	return fmt.Sprintf("%s %s [%s]: aggregate %v vs member sum %v", v.Region, v.Column, v.GroupKey, v.Aggregate, v.MemberSum)
}

// CheckAggregateSums compares a region's stored aggregate rows against the
// sums of its member countries for the given columns, within a relative
// tolerance. Groups where either side is missing are skipped.
func (s *Set) CheckAggregateSums(t *catalog.Table, region string, cols []string, rtol float64, opts AggregateOptions) ([]SumViolation, error) {
	if err := opts.setDefaults(s); err != nil {
		return nil, err
	}
	memberList, err := s.Members(region, opts.IncludeHistorical)
	if err != nil {
		return nil, err
	}
	members := map[string]bool{}
	for _, m := range memberList {
		members[m] = true
	}
	cs, err := t.Column(opts.CountryCol)
	if err != nil {
		return nil, err
	}
	groupCols := []string{opts.YearCol}
	for _, k := range t.Meta.PrimaryKey {
		if k != opts.CountryCol && k != opts.YearCol {
			groupCols = append(groupCols, k)
		}
	}
	groupSeries := make([]*catalog.Series, len(groupCols))
	for i, g := range groupCols {
		gs, err := t.Column(g)
		if err != nil {
			return nil, err
		}
		groupSeries[i] = gs
	}

	sums := map[string]map[string]float64{}
	aggs := map[string]map[string]float64{}
	for r := 0; r < t.Len(); r++ {
		country, ok := cs.String(r)
		if !ok {
			continue
		}
		key := groupKeyAt(groupSeries, r)
		switch {
		case country == region:
			for _, col := range cols {
				if v, ok := t.MustColumn(col).Float(r); ok {
					if aggs[key] == nil {
						aggs[key] = map[string]float64{}
					}
					aggs[key][col] = v
				}
			}
		case members[country]:
			for _, col := range cols {
				if v, ok := t.MustColumn(col).Float(r); ok {
					if sums[key] == nil {
						sums[key] = map[string]float64{}
					}
					sums[key][col] += v
				}
			}
		}
	}

	var out []SumViolation
	for key, colAggs := range aggs {
		for col, agg := range colAggs {
			memberSum, ok := sums[key][col]
			if !ok {
				continue
			}
			if math.Abs(agg-memberSum) > rtol*math.Max(1, math.Abs(agg)) {
				out = append(out, SumViolation{
					Region:    region,
					Column:    col,
					GroupKey:  key,
					Aggregate: agg,
					MemberSum: memberSum,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupKey != out[j].GroupKey {
			return out[i].GroupKey < out[j].GroupKey
		}
		return out[i].Column < out[j].Column
	})
	return out, nil
}
