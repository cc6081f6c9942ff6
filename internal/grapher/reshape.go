// Package grapher reshapes garden tables into the wide-to-long form the
// charting frontend consumes and, when a database is configured, syncs
// them into its schema.
package grapher

import (
	"fmt"

	"github.com/terracehq/terrace/pkg/catalog"
)

// Variable is one indicator extracted from a garden table, with the
// column metadata the melt folds away.
type Variable struct {
	ShortName string
	Meta      catalog.VariableMeta
}

// Reshape converts a wide garden table keyed (entity, year) into the
// grapher long form: one row per (variable, entity, year) with a float
// value column, keyed accordingly. The entity and year columns are
// renamed to their canonical grapher names.
func Reshape(t *catalog.Table, entityCol, yearCol string) (*catalog.Table, []Variable, error) {
	for _, col := range []string{entityCol, yearCol} {
		if !t.HasColumn(col) {
			return nil, nil, fmt.Errorf("grapher reshape: table %s has no column %q", t.Meta.ShortName, col)
		}
	}
	var vars []Variable
	for _, name := range t.Columns() {
		if name == entityCol || name == yearCol {
			continue
		}
		s, _ := t.Column(name)
		if s.DType != catalog.TypeInt && s.DType != catalog.TypeFloat {
			return nil, nil, fmt.Errorf("grapher reshape: column %q is not numeric", name)
		}
		vars = append(vars, Variable{ShortName: name, Meta: s.Meta.Clone()})
	}
	if len(vars) == 0 {
		return nil, nil, fmt.Errorf("grapher reshape: table %s has no indicator columns", t.Meta.ShortName)
	}

	long, err := t.Melt(catalog.MeltOptions{IDVars: []string{entityCol, yearCol}})
	if err != nil {
		return nil, nil, fmt.Errorf("grapher reshape: %w", err)
	}
	rename := map[string]string{}
	if entityCol != "entity" {
		rename[entityCol] = "entity"
	}
	if yearCol != "year" {
		rename[yearCol] = "year"
	}
	if len(rename) > 0 {
		if err := long.Rename(rename); err != nil {
			return nil, nil, fmt.Errorf("grapher reshape: %w", err)
		}
	}
	// Missing values carry no information in long form.
	value := long.MustColumn("value")
	long = long.Filter(func(r int) bool { return !value.IsNull(r) })
	if err := long.SetIndex([]string{"variable", "entity", "year"}, true); err != nil {
		return nil, nil, fmt.Errorf("grapher reshape: %w", err)
	}
	return long, vars, nil
}

// PseudoEntity renders the entity label used when a pivoted dimension
// view presents variables as rows, e.g. "France - Population growth".
func PseudoEntity(entity, variableTitle string) string {
	if variableTitle == "" {
		return entity
	}
	return entity + " - " + variableTitle
}
