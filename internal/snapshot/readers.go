package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/terracehq/terrace/pkg/catalog"
)

// ReadCSV parses CSV bytes into a table. Headers are snake-cased; column
// dtypes are sniffed from the cell texts (int, then float, then bool, then
// string). Empty cells are missing values.
func ReadCSV(r io.Reader, shortName string) (*catalog.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", shortName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read csv %s: no header row", shortName)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = ToSnakeCase(h)
	}
	return tableFromCells(shortName, header, rows[1:])
}

// ReadExcel parses one sheet of an Excel workbook into a table. An empty
// sheet name selects the first sheet.
func ReadExcel(path, sheet, shortName string) (*catalog.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read excel %s: %w", shortName, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read excel %s: sheet %q: %w", shortName, sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read excel %s: sheet %q is empty", shortName, sheet)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = ToSnakeCase(h)
	}
	// GetRows trims trailing empty cells per row; pad to header width.
	cells := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		padded := make([]string, len(header))
		copy(padded, row)
		cells = append(cells, padded)
	}
	return tableFromCells(shortName, header, cells)
}

// ReadJSONRecords parses a JSON array of flat objects into a table. Column
// order follows first appearance across the records.
func ReadJSONRecords(r io.Reader, shortName string) (*catalog.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json %s: %w", shortName, err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("read json %s: %w", shortName, err)
	}
	var columns []string
	seen := map[string]bool{}
	recs := make([]catalog.Record, len(records))
	for i, rec := range records {
		out := catalog.Record{}
		for k, v := range rec {
			col := ToSnakeCase(k)
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
			out[col] = v
		}
		recs[i] = out
	}
	return catalog.FromRecords(shortName, columns, recs)
}

func tableFromCells(shortName string, header []string, rows [][]string) (*catalog.Table, error) {
	t := catalog.NewTable(shortName)
	for c, name := range header {
		if name == "" {
			return nil, fmt.Errorf("read %s: column %d has an empty header", shortName, c)
		}
		texts := make([]string, len(rows))
		for r, row := range rows {
			if c < len(row) {
				texts[r] = strings.TrimSpace(row[c])
			}
		}
		dtype := sniffDType(texts)
		s := catalog.NewSeries(name, dtype)
		for _, text := range texts {
			v, err := catalog.ParseValue(dtype, text)
			if err != nil {
				return nil, fmt.Errorf("read %s: column %s: %w", shortName, name, err)
			}
			if err := s.Append(v); err != nil {
				return nil, fmt.Errorf("read %s: column %s: %w", shortName, name, err)
			}
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// sniffDType picks the narrowest dtype every non-empty cell parses as.
func sniffDType(texts []string) catalog.DType {
	sawAny := false
	isInt, isFloat, isBool := true, true, true
	for _, text := range texts {
		if text == "" {
			continue
		}
		sawAny = true
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			isFloat = false
		}
		if _, err := strconv.ParseBool(text); err != nil {
			isBool = false
		}
	}
	switch {
	case !sawAny:
		return catalog.TypeString
	case isInt:
		return catalog.TypeInt
	case isFloat:
		return catalog.TypeFloat
	case isBool:
		return catalog.TypeBool
	}
	return catalog.TypeString
}

// ToSnakeCase normalizes a raw header into a snake_case identifier:
// "Growth Rate (%)" becomes "growth_rate".
func ToSnakeCase(s string) string {
	var b strings.Builder
	prevUnderscore := true // suppress a leading underscore
	prevLower := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			prevLower = false
		}
	}
	return strings.Trim(b.String(), "_")
}
