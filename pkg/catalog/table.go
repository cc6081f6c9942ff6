package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Record represents a single data row as key-value pairs.
type Record = map[string]any

// Table is an ordered collection of equal-length columns plus table-level
// metadata. The zero value is not usable; construct with NewTable or
// FromRecords.
type Table struct {
	Meta    TableMeta
	columns []*Series
	byName  map[string]int
}

// NewTable returns an empty table with the given short name.
func NewTable(shortName string) *Table {
	return &Table{
		Meta:   TableMeta{ShortName: shortName},
		byName: map[string]int{},
	}
}

// FromRecords builds a table from row maps. Column order follows the given
// column list; dtypes are inferred from the values unless a column already
// carries only nils, which defaults to string.
func FromRecords(shortName string, columns []string, records []Record) (*Table, error) {
	t := NewTable(shortName)
	for _, col := range columns {
		values := make([]any, len(records))
		for i, rec := range records {
			values[i] = rec[col]
		}
		s := NewSeries(col, InferDType(values))
		for _, v := range values {
			if err := s.Append(v); err != nil {
				return nil, err
			}
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].Len()
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	for i, s := range t.columns {
		out[i] = s.Name
	}
	return out
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column returns the named series. The series is shared, not copied.
func (t *Table) Column(name string) (*Series, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("table %s: no column %q", t.Meta.ShortName, name)
	}
	return t.columns[i], nil
}

// MustColumn is Column for callers that have already validated the name.
func (t *Table) MustColumn(name string) *Series {
	s, err := t.Column(name)
	if err != nil {
		panic(err)
	}
	return s
}

// AddSeries appends a column. Its length must match the table unless the
// table is still empty.
func (t *Table) AddSeries(s *Series) error {
	if _, ok := t.byName[s.Name]; ok {
		return fmt.Errorf("table %s: duplicate column %q", t.Meta.ShortName, s.Name)
	}
	if len(t.columns) > 0 && s.Len() != t.Len() {
		return fmt.Errorf("table %s: column %q has %d rows, table has %d", t.Meta.ShortName, s.Name, s.Len(), t.Len())
	}
	if t.byName == nil {
		t.byName = map[string]int{}
	}
	t.byName[s.Name] = len(t.columns)
	t.columns = append(t.columns, s)
	return nil
}

// DropColumns removes the named columns. Key columns cannot be dropped.
func (t *Table) DropColumns(names ...string) error {
	drop := map[string]bool{}
	for _, n := range names {
		if !t.HasColumn(n) {
			return fmt.Errorf("table %s: no column %q", t.Meta.ShortName, n)
		}
		for _, k := range t.Meta.PrimaryKey {
			if k == n {
				return fmt.Errorf("table %s: cannot drop key column %q", t.Meta.ShortName, n)
			}
		}
		drop[n] = true
	}
	var kept []*Series
	for _, s := range t.columns {
		if !drop[s.Name] {
			kept = append(kept, s)
		}
	}
	t.columns = kept
	t.reindexColumns()
	return nil
}

// Rename renames columns per the mapping. Variable metadata moves with the
// column; key columns are renamed in the primary key as well.
func (t *Table) Rename(mapping map[string]string) error {
	for from, to := range mapping {
		if !t.HasColumn(from) {
			return fmt.Errorf("table %s: no column %q", t.Meta.ShortName, from)
		}
		if from != to && t.HasColumn(to) {
			return fmt.Errorf("table %s: rename %q: column %q already exists", t.Meta.ShortName, from, to)
		}
	}
	for from, to := range mapping {
		s := t.columns[t.byName[from]]
		s.Name = to
		for i, k := range t.Meta.PrimaryKey {
			if k == from {
				t.Meta.PrimaryKey[i] = to
			}
		}
	}
	t.reindexColumns()
	return nil
}

// Select returns a new table restricted to the named columns, in the given
// order. Key columns not listed lose their key status.
func (t *Table) Select(names ...string) (*Table, error) {
	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = nil
	for _, n := range names {
		s, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		if err := out.AddSeries(s.Clone()); err != nil {
			return nil, err
		}
	}
	for _, k := range t.Meta.PrimaryKey {
		if out.HasColumn(k) {
			out.Meta.PrimaryKey = append(out.Meta.PrimaryKey, k)
		}
	}
	return out, nil
}

// SetIndex declares the primary key. Key columns are moved to the front in
// the given order. With verify set, key uniqueness is checked and
// violations are returned as an error.
func (t *Table) SetIndex(key []string, verify bool) error {
	for _, k := range key {
		if !t.HasColumn(k) {
			return fmt.Errorf("table %s: key column %q does not exist", t.Meta.ShortName, k)
		}
	}
	inKey := map[string]bool{}
	for _, k := range key {
		inKey[k] = true
	}
	var ordered []*Series
	for _, k := range key {
		ordered = append(ordered, t.columns[t.byName[k]])
	}
	for _, s := range t.columns {
		if !inKey[s.Name] {
			ordered = append(ordered, s)
		}
	}
	t.columns = ordered
	t.reindexColumns()
	t.Meta.PrimaryKey = append([]string{}, key...)
	if verify {
		return t.VerifyPrimaryKey()
	}
	return nil
}

// ResetIndex clears the primary key, keeping the key columns as ordinary
// columns.
func (t *Table) ResetIndex() {
	t.Meta.PrimaryKey = nil
}

// VerifyPrimaryKey checks that no two rows share the same primary key and
// that no key value is missing. The error names every offending key.
func (t *Table) VerifyPrimaryKey() error {
	if len(t.Meta.PrimaryKey) == 0 {
		return fmt.Errorf("table %s: no primary key set", t.Meta.ShortName)
	}
	keyCols := make([]*Series, len(t.Meta.PrimaryKey))
	for i, k := range t.Meta.PrimaryKey {
		keyCols[i] = t.columns[t.byName[k]]
	}
	seen := make(map[string]int, t.Len())
	var dups []string
	var nulls []string
	for r := 0; r < t.Len(); r++ {
		key, hasNull := rowKey(keyCols, r)
		if hasNull {
			nulls = append(nulls, key)
			continue
		}
		if _, ok := seen[key]; ok {
			dups = append(dups, key)
		}
		seen[key] = r
	}
	if len(dups) == 0 && len(nulls) == 0 {
		return nil
	}
	var parts []string
	if len(dups) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate keys: %s", strings.Join(dedupSorted(dups), ", ")))
	}
	if len(nulls) > 0 {
		parts = append(parts, fmt.Sprintf("null keys: %s", strings.Join(dedupSorted(nulls), ", ")))
	}
	return fmt.Errorf("table %s: primary key (%s) violated: %s",
		t.Meta.ShortName, strings.Join(t.Meta.PrimaryKey, ", "), strings.Join(parts, "; "))
}

// Row returns row r as a record.
func (t *Table) Row(r int) Record {
	rec := make(Record, len(t.columns))
	for _, s := range t.columns {
		rec[s.Name] = s.Values[r]
	}
	return rec
}

// Records materializes the whole table as row maps.
func (t *Table) Records() []Record {
	out := make([]Record, t.Len())
	for r := range out {
		out[r] = t.Row(r)
	}
	return out
}

// AppendRecord appends one row. Missing keys append nil.
func (t *Table) AppendRecord(rec Record) error {
	for _, s := range t.columns {
		if err := s.Append(rec[s.Name]); err != nil {
			return err
		}
	}
	return nil
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = append([]string{}, t.Meta.PrimaryKey...)
	for _, s := range t.columns {
		_ = out.AddSeries(s.Clone())
	}
	return out
}

// take builds a new table from the given row positions.
func (t *Table) take(rows []int) *Table {
	out := NewTable(t.Meta.ShortName)
	out.Meta = t.Meta
	out.Meta.PrimaryKey = append([]string{}, t.Meta.PrimaryKey...)
	for _, s := range t.columns {
		_ = out.AddSeries(s.take(rows))
	}
	return out
}

func (t *Table) reindexColumns() {
	t.byName = make(map[string]int, len(t.columns))
	for i, s := range t.columns {
		t.byName[s.Name] = i
	}
}

// rowKey renders the key tuple of row r. hasNull is true when any key
// column is missing in that row.
func rowKey(keyCols []*Series, r int) (string, bool) {
	parts := make([]string, len(keyCols))
	hasNull := false
	for i, s := range keyCols {
		v := s.Values[r]
		if v == nil {
			hasNull = true
			parts[i] = "<null>"
			continue
		}
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "|"), hasNull
}

func dedupSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
