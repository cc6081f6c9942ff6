package catalog

import (
	"fmt"
	"sort"
)

// MeltOptions configures Melt. VarName and ValueName default to
// "variable" and "value".
type MeltOptions struct {
	IDVars    []string
	ValueVars []string
	VarName   string
	ValueName string
}

// Melt unpivots a wide table into long form: one row per (id vars,
// variable) with the variable name in its own column. Value columns must
// be numeric; their units may differ, so the value column carries no unit,
// only the union of the melted columns' origins.
func (t *Table) Melt(opts MeltOptions) (*Table, error) {
	varName := opts.VarName
	if varName == "" {
		varName = "variable"
	}
	valueName := opts.ValueName
	if valueName == "" {
		valueName = "value"
	}
	idSet := map[string]bool{}
	for _, id := range opts.IDVars {
		if !t.HasColumn(id) {
			return nil, fmt.Errorf("melt: no column %q", id)
		}
		idSet[id] = true
	}
	valueVars := opts.ValueVars
	if len(valueVars) == 0 {
		for _, s := range t.columns {
			if !idSet[s.Name] {
				valueVars = append(valueVars, s.Name)
			}
		}
	}
	var valueMeta VariableMeta
	for _, v := range valueVars {
		s, err := t.Column(v)
		if err != nil {
			return nil, fmt.Errorf("melt: %w", err)
		}
		if s.DType != TypeInt && s.DType != TypeFloat {
			return nil, fmt.Errorf("melt: column %q is not numeric (dtype %s)", v, s.DType)
		}
		valueMeta.Origins = MergeOrigins(valueMeta.Origins, s.Meta.Origins)
	}

	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = nil
	n := t.Len() * len(valueVars)
	for _, id := range opts.IDVars {
		src := t.columns[t.byName[id]]
		s := NewSeries(id, src.DType)
		s.Meta = src.Meta.Clone()
		s.Values = make([]any, 0, n)
		for r := 0; r < t.Len(); r++ {
			for range valueVars {
				s.Values = append(s.Values, src.Values[r])
			}
		}
		if err := out.AddSeries(s); err != nil {
			return nil, err
		}
	}
	vs := NewSeries(varName, TypeString)
	vs.Values = make([]any, 0, n)
	val := NewSeries(valueName, TypeFloat)
	val.Meta = valueMeta
	val.Values = make([]any, 0, n)
	for r := 0; r < t.Len(); r++ {
		for _, v := range valueVars {
			vs.Values = append(vs.Values, v)
			src := t.columns[t.byName[v]]
			if f, ok := src.Float(r); ok {
				val.Values = append(val.Values, f)
			} else {
				val.Values = append(val.Values, nil)
			}
		}
	}
	if err := out.AddSeries(vs); err != nil {
		return nil, err
	}
	if err := out.AddSeries(val); err != nil {
		return nil, err
	}
	return out, nil
}

// Pivot spreads a long table wide: distinct values of the column named by
// columns become new columns holding the value column, one row per
// distinct index tuple. Duplicate (index, column) pairs are an error. New
// columns inherit the value column's metadata.
func (t *Table) Pivot(index []string, columns, values string) (*Table, error) {
	for _, id := range index {
		if !t.HasColumn(id) {
			return nil, fmt.Errorf("pivot: no column %q", id)
		}
	}
	colSeries, err := t.Column(columns)
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}
	valSeries, err := t.Column(values)
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}

	idxCols := make([]*Series, len(index))
	for i, id := range index {
		idxCols[i] = t.columns[t.byName[id]]
	}

	var rowOrder []string
	rowAt := map[string]int{}
	var colNames []string
	colSeen := map[string]bool{}
	cells := map[string]map[string]any{}
	for r := 0; r < t.Len(); r++ {
		key, hasNull := rowKey(idxCols, r)
		if hasNull {
			return nil, fmt.Errorf("pivot: missing index value at row %d", r)
		}
		if _, ok := rowAt[key]; !ok {
			rowAt[key] = r
			rowOrder = append(rowOrder, key)
			cells[key] = map[string]any{}
		}
		cv := colSeries.Values[r]
		if cv == nil {
			return nil, fmt.Errorf("pivot: missing %s value at row %d", columns, r)
		}
		name := formatValue(cv)
		if !colSeen[name] {
			colSeen[name] = true
			colNames = append(colNames, name)
		}
		if _, dup := cells[key][name]; dup {
			return nil, fmt.Errorf("pivot: duplicate entry for (%s, %s)", key, name)
		}
		cells[key][name] = valSeries.Values[r]
	}
	sort.Strings(colNames)

	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = nil
	for i, id := range index {
		src := idxCols[i]
		s := NewSeries(id, src.DType)
		s.Meta = src.Meta.Clone()
		for _, key := range rowOrder {
			s.Values = append(s.Values, src.Values[rowAt[key]])
		}
		if err := out.AddSeries(s); err != nil {
			return nil, err
		}
	}
	for _, name := range colNames {
		s := NewSeries(name, valSeries.DType)
		s.Meta = valSeries.Meta.Clone()
		if s.Meta.Title == "" {
			s.Meta.Title = name
		}
		for _, key := range rowOrder {
			s.Values = append(s.Values, cells[key][name])
		}
		if err := out.AddSeries(s); err != nil {
			return nil, err
		}
	}
	if err := out.SetIndex(append([]string{}, index...), false); err != nil {
		return nil, err
	}
	return out, nil
}
