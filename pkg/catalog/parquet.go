package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	buffer "github.com/xitongsys/parquet-go-source/buffer"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// ColumnSidecar is one column's entry in the table sidecar: the dtype
// needed to reconstruct the column plus its variable metadata.
type ColumnSidecar struct {
	DType string `json:"dtype"`
	VariableMeta
}

// TableSidecar is the JSON document stored next to each parquet file. The
// parquet file holds only values; everything else lives here.
type TableSidecar struct {
	Table       TableMeta                `json:"table"`
	ColumnOrder []string                 `json:"column_order"`
	Columns     map[string]ColumnSidecar `json:"columns"`
}

// Sidecar renders the table's metadata document.
func (t *Table) Sidecar() TableSidecar {
	sc := TableSidecar{
		Table:       t.Meta,
		ColumnOrder: t.Columns(),
		Columns:     make(map[string]ColumnSidecar, len(t.columns)),
	}
	for _, s := range t.columns {
		sc.Columns[s.Name] = ColumnSidecar{DType: string(s.DType), VariableMeta: s.Meta.Clone()}
	}
	return sc
}

var parquetNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EncodeParquet renders the table's values as a snappy-compressed parquet
// file. Column names must be snake_case identifiers; normalize before
// writing.
func EncodeParquet(t *Table) ([]byte, error) {
	for _, name := range t.Columns() {
		if !parquetNameRe.MatchString(name) {
			return nil, fmt.Errorf("encode parquet: column name %q is not a valid identifier", name)
		}
	}
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	schemaDef := buildParquetSchema(t)
	pw, err := writer.NewJSONWriter(schemaDef, pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for r := 0; r < t.Len(); r++ {
		row, err := json.Marshal(t.Row(r))
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("encode parquet row %d: %w", r, err)
		}
		if err := pw.Write(string(row)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("encode parquet row %d: %w", r, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// DecodeParquet reconstructs a table from parquet bytes plus its sidecar.
// Values come back through a JSON round trip, so they are re-coerced into
// the sidecar's dtypes.
func DecodeParquet(data []byte, sc TableSidecar) (*Table, error) {
	pfr := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(pfr, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	defer func() {
		pr.ReadStop()
		_ = pfr.Close()
	}()

	num := int(pr.GetNumRows())
	var rows []Record
	if num > 0 {
		raw, err := pr.ReadByNumber(num)
		if err != nil {
			return nil, fmt.Errorf("decode parquet: %w", err)
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode parquet: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(encoded))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode parquet: %w", err)
		}
	}

	t := NewTable(sc.Table.ShortName)
	t.Meta = sc.Table
	for _, name := range sc.ColumnOrder {
		col, ok := sc.Columns[name]
		if !ok {
			return nil, fmt.Errorf("decode parquet: sidecar lists column %q without an entry", name)
		}
		dtype, err := ParseDType(col.DType)
		if err != nil {
			return nil, fmt.Errorf("decode parquet: column %q: %w", name, err)
		}
		s := NewSeries(name, dtype)
		s.Meta = col.VariableMeta
		for r, rec := range rows {
			v, err := fromJSONValue(dtype, rec[name])
			if err != nil {
				return nil, fmt.Errorf("decode parquet: column %q row %d: %w", name, r, err)
			}
			s.Values = append(s.Values, v)
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// fromJSONValue coerces a JSON-decoded value into the dtype's storage
// type. json.Number carries both int and float columns losslessly.
func fromJSONValue(dtype DType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dtype {
	case TypeInt:
		if n, ok := v.(json.Number); ok {
			i, err := n.Int64()
			if err != nil {
				return nil, err
			}
			return i, nil
		}
	case TypeFloat:
		if n, ok := v.(json.Number); ok {
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unexpected %T value for dtype %s", v, dtype)
}

func buildParquetSchema(t *Table) string {
	fields := make([]map[string]string, 0, len(t.columns))
	for _, s := range t.columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", s.Name, parquetPhysicalType(s.DType)),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func parquetPhysicalType(dtype DType) string {
	switch dtype {
	case TypeBool:
		return "BOOLEAN"
	case TypeInt:
		return "INT64"
	case TypeFloat:
		return "DOUBLE"
	default:
		return "BYTE_ARRAY"
	}
}
