package datafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"delta-forge/schema"
)

// ParquetCodec encodes row batches as Parquet files.
type ParquetCodec struct{}

func NewParquetCodec() *ParquetCodec {
	return &ParquetCodec{}
}

func (c *ParquetCodec) Extension() string { return ".parquet" }

func (c *ParquetCodec) Encode(sch *schema.Schema, rows []schema.Row) ([]byte, error) {
	psch, err := parquetSchema(sch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	records := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		record := make(map[string]any, len(sch.Fields))
		for _, f := range sch.Fields {
			v, err := toParquetValue(f, row[f.Name])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrEncoding, i, err)
			}
			record[f.Name] = v
		}
		records = append(records, record)
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[map[string]any](&buf, psch)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("%w: writing records: %v", ErrEncoding, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing writer: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

func (c *ParquetCodec) Decode(sch *schema.Schema, data []byte) ([]schema.Row, error) {
	psch, err := parquetSchema(sch)
	if err != nil {
		return nil, fmt.Errorf("building parquet schema: %w", err)
	}

	reader := parquet.NewGenericReader[map[string]any](bytes.NewReader(data), psch)
	defer reader.Close()

	// The reader fills the destination maps in place, so every element has
	// to be allocated up front.
	records := make([]map[string]any, reader.NumRows())
	for i := range records {
		records[i] = make(map[string]any, len(sch.Fields))
	}
	for read := 0; read < len(records); {
		n, err := reader.Read(records[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				records = records[:read]
				break
			}
			return nil, fmt.Errorf("reading parquet file: %w", err)
		}
	}

	rows := make([]schema.Row, 0, len(records))
	for i, record := range records {
		row := make(schema.Row, len(sch.Fields))
		for _, f := range sch.Fields {
			v := record[f.Name]
			if v == nil {
				row[f.Name] = nil
				continue
			}
			cv, err := schema.Coerce(f.Type, v)
			if err != nil {
				return nil, fmt.Errorf("record %d, column %q: %w", i, f.Name, err)
			}
			row[f.Name] = cv
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// toParquetValue narrows the canonical Go representation to what the
// parquet leaf node for the column expects.
func toParquetValue(f schema.Field, v any) (any, error) {
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("column %q is required", f.Name)
	}
	switch f.Type {
	case schema.TypeInt:
		if n, ok := v.(int64); ok {
			return int32(n), nil
		}
	case schema.TypeLong:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case schema.TypeFloat:
		if n, ok := v.(float64); ok {
			return float32(n), nil
		}
	case schema.TypeDouble:
		if n, ok := v.(float64); ok {
			return n, nil
		}
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeDate:
		// Date leaves hold days since the Unix epoch, not a timestamp.
		if ts, ok := v.(time.Time); ok {
			return int32(ts.UTC().Unix() / 86400), nil
		}
	case schema.TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts, nil
		}
	case schema.TypeBinary:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("column %q: value %v (%T) is not a valid %s", f.Name, v, v, f.Type)
}

func parquetSchema(sch *schema.Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range sch.Fields {
		var node parquet.Node

		switch field.Type {
		case schema.TypeInt:
			node = parquet.Leaf(parquet.Int32Type)
		case schema.TypeLong:
			node = parquet.Leaf(parquet.Int64Type)
		case schema.TypeString:
			node = parquet.String()
		case schema.TypeDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case schema.TypeFloat:
			node = parquet.Leaf(parquet.FloatType)
		case schema.TypeBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case schema.TypeDate:
			node = parquet.Date()
		case schema.TypeTimestamp:
			node = parquet.Timestamp(parquet.Millisecond)
		case schema.TypeBinary:
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported type: %s", field.Type)
		}

		if field.Nullable {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}

	return parquet.NewSchema("table", root), nil
}
