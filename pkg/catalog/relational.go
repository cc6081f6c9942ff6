package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(r int) bool) *Table {
	var rows []int
	for r := 0; r < t.Len(); r++ {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.take(rows)
}

// Sort returns a new table sorted ascending by the given columns, stable,
// missing values last.
func (t *Table) Sort(by ...string) (*Table, error) {
	cols := make([]*Series, len(by))
	for i, name := range by {
		s, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = s
	}
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range cols {
			c := compareValues(s.Values[rows[i]], s.Values[rows[j]])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return t.take(rows), nil
}

// compareValues orders two values of the same dtype. nil sorts after
// everything else.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	switch av := a.(type) {
	case string:
		bv := b.(string)
		return strings.Compare(av, bv)
	case int64:
		switch bv := b.(type) {
		case int64:
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		case float64:
			return compareFloats(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return compareFloats(av, bv)
		case int64:
			return compareFloats(av, float64(bv))
		}
	case bool:
		bv := b.(bool)
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		}
		return 0
	}
	return strings.Compare(formatValue(a), formatValue(b))
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Concat stacks tables vertically. The result carries the union of all
// columns; rows from tables lacking a column get missing values there.
// Columns sharing a name must share a dtype, except that int widens to
// float. Shared columns combine their metadata.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("concat of zero tables")
	}
	out := NewTable(tables[0].Meta.ShortName)
	out.Meta = tables[0].Meta
	out.Meta.PrimaryKey = append([]string{}, tables[0].Meta.PrimaryKey...)

	type colSpec struct {
		dtype DType
		meta  VariableMeta
		set   bool
	}
	var order []string
	specs := map[string]*colSpec{}
	total := 0
	for _, t := range tables {
		total += t.Len()
		for _, s := range t.columns {
			sp, ok := specs[s.Name]
			if !ok {
				specs[s.Name] = &colSpec{dtype: s.DType, meta: s.Meta.Clone(), set: true}
				order = append(order, s.Name)
				continue
			}
			if sp.dtype != s.DType {
				if (sp.dtype == TypeInt && s.DType == TypeFloat) || (sp.dtype == TypeFloat && s.DType == TypeInt) {
					sp.dtype = TypeFloat
				} else {
					return nil, fmt.Errorf("concat: column %q has conflicting dtypes %s and %s", s.Name, sp.dtype, s.DType)
				}
			}
			sp.meta = combineVariableMeta(sp.meta, s.Meta)
		}
	}

	for _, name := range order {
		sp := specs[name]
		s := NewSeries(name, sp.dtype)
		s.Meta = sp.meta
		s.Values = make([]any, 0, total)
		for _, t := range tables {
			if !t.HasColumn(name) {
				for i := 0; i < t.Len(); i++ {
					s.Values = append(s.Values, nil)
				}
				continue
			}
			src := t.columns[t.byName[name]]
			for i := 0; i < src.Len(); i++ {
				cv, err := coerceValue(sp.dtype, src.Values[i])
				if err != nil {
					return nil, fmt.Errorf("concat: %w", err)
				}
				s.Values = append(s.Values, cv)
			}
		}
		if err := out.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// JoinKind selects which side's unmatched rows survive a join.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinOuter JoinKind = "outer"
)

// JoinOptions configures Join.
type JoinOptions struct {
	On   []string
	Kind JoinKind

	// VerifyIntegrity re-checks primary key uniqueness on the joined
	// table when the left side had a key.
	VerifyIntegrity bool
}

// Join merges two tables on the given key columns. Non-key columns present
// on both sides are folded into one column: the left value wins, missing
// left values fill from the right, and the metadata of both sides is
// combined (origins unioned, units kept only on agreement).
func (t *Table) Join(other *Table, opts JoinOptions) (*Table, error) {
	if len(opts.On) == 0 {
		return nil, fmt.Errorf("join: no key columns given")
	}
	kind := opts.Kind
	if kind == "" {
		kind = JoinInner
	}
	leftKeys := make([]*Series, len(opts.On))
	rightKeys := make([]*Series, len(opts.On))
	for i, k := range opts.On {
		ls, err := t.Column(k)
		if err != nil {
			return nil, fmt.Errorf("join: left: %w", err)
		}
		rs, err := other.Column(k)
		if err != nil {
			return nil, fmt.Errorf("join: right: %w", err)
		}
		if ls.DType != rs.DType {
			return nil, fmt.Errorf("join: key column %q has dtype %s on the left, %s on the right", k, ls.DType, rs.DType)
		}
		leftKeys[i] = ls
		rightKeys[i] = rs
	}

	rightIndex := make(map[string][]int, other.Len())
	for r := 0; r < other.Len(); r++ {
		key, hasNull := rowKey(rightKeys, r)
		if hasNull {
			continue
		}
		rightIndex[key] = append(rightIndex[key], r)
	}

	// Paired row positions; -1 marks the absent side.
	var leftRows, rightRows []int
	matchedRight := make(map[int]bool)
	for r := 0; r < t.Len(); r++ {
		key, hasNull := rowKey(leftKeys, r)
		matches := rightIndex[key]
		if hasNull {
			matches = nil
		}
		if len(matches) == 0 {
			if kind == JoinLeft || kind == JoinOuter {
				leftRows = append(leftRows, r)
				rightRows = append(rightRows, -1)
			}
			continue
		}
		for _, rr := range matches {
			leftRows = append(leftRows, r)
			rightRows = append(rightRows, rr)
			matchedRight[rr] = true
		}
	}
	if kind == JoinOuter {
		for r := 0; r < other.Len(); r++ {
			if !matchedRight[r] {
				leftRows = append(leftRows, -1)
				rightRows = append(rightRows, r)
			}
		}
	}

	onSet := map[string]bool{}
	for _, k := range opts.On {
		onSet[k] = true
	}
	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = append([]string{}, t.Meta.PrimaryKey...)

	appendCol := func(name string, dtype DType, meta VariableMeta, get func(i int) any) error {
		s := NewSeries(name, dtype)
		s.Meta = meta
		s.Values = make([]any, len(leftRows))
		for i := range leftRows {
			cv, err := coerceValue(dtype, get(i))
			if err != nil {
				return err
			}
			s.Values[i] = cv
		}
		return out.AddSeries(s)
	}

	for _, ls := range t.columns {
		ls := ls
		if onSet[ls.Name] {
			rs := other.columns[other.byName[ls.Name]]
			err := appendCol(ls.Name, ls.DType, ls.Meta.Clone(), func(i int) any {
				if leftRows[i] >= 0 {
					return ls.Values[leftRows[i]]
				}
				return rs.Values[rightRows[i]]
			})
			if err != nil {
				return nil, fmt.Errorf("join: %w", err)
			}
			continue
		}
		if ri, shared := other.byName[ls.Name]; shared {
			rs := other.columns[ri]
			dtype, err := widenDType(ls.DType, rs.DType)
			if err != nil {
				return nil, fmt.Errorf("join: column %q: %w", ls.Name, err)
			}
			err = appendCol(ls.Name, dtype, combineVariableMeta(ls.Meta, rs.Meta), func(i int) any {
				if leftRows[i] >= 0 && ls.Values[leftRows[i]] != nil {
					return ls.Values[leftRows[i]]
				}
				if rightRows[i] >= 0 {
					return rs.Values[rightRows[i]]
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("join: %w", err)
			}
			continue
		}
		err := appendCol(ls.Name, ls.DType, ls.Meta.Clone(), func(i int) any {
			if leftRows[i] >= 0 {
				return ls.Values[leftRows[i]]
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}
	for _, rs := range other.columns {
		rs := rs
		if onSet[rs.Name] || t.HasColumn(rs.Name) {
			continue
		}
		err := appendCol(rs.Name, rs.DType, rs.Meta.Clone(), func(i int) any {
			if rightRows[i] >= 0 {
				return rs.Values[rightRows[i]]
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}

	if opts.VerifyIntegrity && len(out.Meta.PrimaryKey) > 0 {
		if err := out.VerifyPrimaryKey(); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}
	return out, nil
}

func widenDType(a, b DType) (DType, error) {
	if a == b {
		return a, nil
	}
	if (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt) {
		return TypeFloat, nil
	}
	return "", fmt.Errorf("conflicting dtypes %s and %s", a, b)
}

// AggFunc names a per-column aggregation.
type AggFunc string

const (
	AggSum    AggFunc = "sum"
	AggMean   AggFunc = "mean"
	AggMedian AggFunc = "median"
	AggMin    AggFunc = "min"
	AggMax    AggFunc = "max"
	AggFirst  AggFunc = "first"
	AggCount  AggFunc = "count"
)

// GroupBy groups rows by the given columns. Rows with a missing group
// value are dropped.
type GroupBy struct {
	table *Table
	by    []string
}

// GroupBy prepares aggregation over distinct values of the given columns.
func (t *Table) GroupBy(by ...string) (*GroupBy, error) {
	for _, b := range by {
		if !t.HasColumn(b) {
			return nil, fmt.Errorf("table %s: no column %q", t.Meta.ShortName, b)
		}
	}
	return &GroupBy{table: t, by: by}, nil
}

// Aggregate reduces each group to one row. aggs maps value columns to the
// aggregation applied to them; columns not listed are dropped. Group order
// follows first appearance. Missing values are skipped; a group with no
// values for a column yields a missing value.
func (g *GroupBy) Aggregate(aggs map[string]AggFunc) (*Table, error) {
	t := g.table
	byCols := make([]*Series, len(g.by))
	for i, b := range g.by {
		byCols[i] = t.columns[t.byName[b]]
	}

	var groupOrder []string
	groupRows := map[string][]int{}
	for r := 0; r < t.Len(); r++ {
		key, hasNull := rowKey(byCols, r)
		if hasNull {
			continue
		}
		if _, ok := groupRows[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groupRows[key] = append(groupRows[key], r)
	}

	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = nil
	for _, s := range byCols {
		ns := NewSeries(s.Name, s.DType)
		ns.Meta = s.Meta.Clone()
		for _, key := range groupOrder {
			ns.Values = append(ns.Values, s.Values[groupRows[key][0]])
		}
		if err := out.AddSeries(ns); err != nil {
			return nil, err
		}
	}

	for _, s := range t.columns {
		fn, ok := aggs[s.Name]
		if !ok {
			continue
		}
		dtype, err := aggResultType(s.DType, fn)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s(%s): %w", fn, s.Name, err)
		}
		ns := NewSeries(s.Name, dtype)
		ns.Meta = s.Meta.Clone()
		for _, key := range groupOrder {
			v, err := aggregateRows(s, groupRows[key], fn)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s(%s): %w", fn, s.Name, err)
			}
			if err := ns.Append(v); err != nil {
				return nil, err
			}
		}
		if err := out.AddSeries(ns); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func aggResultType(dtype DType, fn AggFunc) (DType, error) {
	switch fn {
	case AggCount:
		return TypeInt, nil
	case AggFirst, AggMin, AggMax:
		return dtype, nil
	case AggSum:
		if dtype != TypeInt && dtype != TypeFloat {
			return "", fmt.Errorf("not numeric (dtype %s)", dtype)
		}
		return dtype, nil
	case AggMean, AggMedian:
		if dtype != TypeInt && dtype != TypeFloat {
			return "", fmt.Errorf("not numeric (dtype %s)", dtype)
		}
		return TypeFloat, nil
	}
	return "", fmt.Errorf("unknown aggregation %q", fn)
}

// aggregateRows reduces the non-missing values of s at the given rows.
func aggregateRows(s *Series, rows []int, fn AggFunc) (any, error) {
	if fn == AggCount {
		n := int64(0)
		for _, r := range rows {
			if s.Values[r] != nil {
				n++
			}
		}
		return n, nil
	}
	if fn == AggFirst {
		for _, r := range rows {
			if s.Values[r] != nil {
				return s.Values[r], nil
			}
		}
		return nil, nil
	}
	if fn == AggMin || fn == AggMax {
		var best any
		for _, r := range rows {
			v := s.Values[r]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := compareValues(v, best)
			if (fn == AggMin && c < 0) || (fn == AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	}

	var vals []float64
	for _, r := range rows {
		if f, ok := s.Float(r); ok {
			vals = append(vals, f)
		}
	}
	if len(vals) == 0 {
		return nil, nil
	}
	switch fn {
	case AggSum:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		if s.DType == TypeInt {
			return int64(sum), nil
		}
		return sum, nil
	case AggMean:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals)), nil
	case AggMedian:
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			return vals[mid], nil
		}
		return (vals[mid-1] + vals[mid]) / 2, nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", fn)
}
