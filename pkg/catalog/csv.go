package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV renders the table with a header row, columns in table order,
// missing values as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(t.columns))
	for r := 0; r < t.Len(); r++ {
		for i, s := range t.columns {
			row[i] = formatValue(s.Values[r])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", r, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV renders the table as CSV bytes.
func (t *Table) EncodeCSV() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := t.WriteCSV(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
