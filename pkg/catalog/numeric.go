package catalog

import (
	"fmt"
	"strings"
)

// Div adds a column named name holding a divided by b, row by row. Rows
// where either operand is missing, or where b is zero, yield a missing
// value. The new column unions the operands' origins; the numerator's unit
// survives only when the denominator is unitless.
func (t *Table) Div(a, b, name string) error {
	as, err := t.Column(a)
	if err != nil {
		return fmt.Errorf("div: %w", err)
	}
	bs, err := t.Column(b)
	if err != nil {
		return fmt.Errorf("div: %w", err)
	}
	for _, s := range []*Series{as, bs} {
		if s.DType != TypeInt && s.DType != TypeFloat {
			return fmt.Errorf("div: column %q is not numeric (dtype %s)", s.Name, s.DType)
		}
	}
	out := NewSeries(name, TypeFloat)
	out.Meta = VariableMeta{
		Origins:         MergeOrigins(as.Meta.Origins, bs.Meta.Origins),
		ProcessingLevel: ProcessingMajor,
	}
	if bs.Meta.Unit == "" {
		out.Meta.Unit = as.Meta.Unit
		out.Meta.ShortUnit = as.Meta.ShortUnit
	}
	out.Values = make([]any, t.Len())
	for r := 0; r < t.Len(); r++ {
		av, aok := as.Float(r)
		bv, bok := bs.Float(r)
		if !aok || !bok || bv == 0 {
			continue
		}
		out.Values[r] = av / bv
	}
	return t.AddSeries(out)
}

// RollingOptions configures RollingMean. Window is the trailing window
// size in rows; MinPeriods is the minimum number of present values needed
// to emit a result (defaults to Window). GroupBy restarts the window at
// every change of the given columns; rows are assumed sorted so that each
// group is contiguous and ordered along the rolling dimension.
type RollingOptions struct {
	Window     int
	MinPeriods int
	GroupBy    []string
}

// RollingMean adds a column named name holding the trailing mean of col.
func (t *Table) RollingMean(col, name string, opts RollingOptions) error {
	if opts.Window <= 0 {
		return fmt.Errorf("rolling mean: window must be positive")
	}
	minPeriods := opts.MinPeriods
	if minPeriods <= 0 {
		minPeriods = opts.Window
	}
	src, err := t.Column(col)
	if err != nil {
		return fmt.Errorf("rolling mean: %w", err)
	}
	if src.DType != TypeInt && src.DType != TypeFloat {
		return fmt.Errorf("rolling mean: column %q is not numeric (dtype %s)", col, src.DType)
	}
	groupCols := make([]*Series, len(opts.GroupBy))
	for i, g := range opts.GroupBy {
		gs, err := t.Column(g)
		if err != nil {
			return fmt.Errorf("rolling mean: %w", err)
		}
		groupCols[i] = gs
	}

	out := NewSeries(name, TypeFloat)
	out.Meta = src.Meta.Clone()
	out.Meta.Title = ""
	out.Meta.ProcessingLevel = ProcessingMajor
	out.Values = make([]any, t.Len())

	var window []any
	prevGroup := ""
	for r := 0; r < t.Len(); r++ {
		if len(groupCols) > 0 {
			g, _ := rowKey(groupCols, r)
			if r == 0 || g != prevGroup {
				window = window[:0]
			}
			prevGroup = g
		}
		window = append(window, src.Values[r])
		if len(window) > opts.Window {
			window = window[1:]
		}
		sum, n := 0.0, 0
		for _, v := range window {
			switch f := v.(type) {
			case float64:
				sum += f
				n++
			case int64:
				sum += float64(f)
				n++
			}
		}
		if n >= minPeriods {
			out.Values[r] = sum / float64(n)
		}
	}
	return t.AddSeries(out)
}

// AssertValuesInRange checks that every present value of col lies in
// [lo, hi]. The error names every offending row by its primary key, or by
// row number when no key is set.
func (t *Table) AssertValuesInRange(col string, lo, hi float64) error {
	s, err := t.Column(col)
	if err != nil {
		return err
	}
	var keyCols []*Series
	for _, k := range t.Meta.PrimaryKey {
		keyCols = append(keyCols, t.columns[t.byName[k]])
	}
	var bad []string
	for r := 0; r < t.Len(); r++ {
		f, ok := s.Float(r)
		if !ok || (f >= lo && f <= hi) {
			continue
		}
		label := fmt.Sprintf("row %d", r)
		if len(keyCols) > 0 {
			label, _ = rowKey(keyCols, r)
		}
		bad = append(bad, fmt.Sprintf("%s=%v", label, formatValue(s.Values[r])))
	}
	if len(bad) > 0 {
		return fmt.Errorf("table %s: column %q out of range [%v, %v]: %s",
			t.Meta.ShortName, col, lo, hi, strings.Join(bad, ", "))
	}
	return nil
}
