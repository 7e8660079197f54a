package schema

import (
	"fmt"
	"time"
)

// Type is the logical type of a column. The set is closed: anything outside
// it is rejected when the schema is declared.
type Type string

const (
	TypeLong      Type = "long"
	TypeInt       Type = "int"
	TypeDouble    Type = "double"
	TypeFloat     Type = "float"
	TypeString    Type = "string"
	TypeBoolean   Type = "boolean"
	TypeDate      Type = "date"
	TypeTimestamp Type = "timestamp"
	TypeBinary    Type = "binary"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLong, TypeInt, TypeDouble, TypeFloat, TypeString,
		TypeBoolean, TypeDate, TypeTimestamp, TypeBinary:
		return true
	}
	return false
}

type Field struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Schema struct {
	Fields []Field `json:"fields"`
}

// Row is a single record keyed by column name.
type Row map[string]any

// Batch is an ordered set of rows sharing one schema.
type Batch struct {
	Schema *Schema
	Rows   []Row
}

func New(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Validate checks that the schema itself is well formed: at least one
// column, no duplicate names, only known logical types.
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema has a column with an empty name")
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate column %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("column %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports whether two schemas declare the same columns, in the same
// order, with the same types and nullability.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if f != other.Fields[i] {
			return false
		}
	}
	return true
}

// ValidateBatch checks every row of the batch against the schema and
// normalizes values in place to the canonical Go representation for each
// logical type (integers widen to int64, strings decode from []byte, and
// so on). A row failing validation fails the whole batch.
func (s *Schema) ValidateBatch(batch *Batch) error {
	if batch.Schema != nil && !s.Equal(batch.Schema) {
		return fmt.Errorf("batch schema does not match table schema")
	}
	for i, row := range batch.Rows {
		for name := range row {
			if _, ok := s.Field(name); !ok {
				return fmt.Errorf("row %d: unknown column %q", i, name)
			}
		}
		for _, f := range s.Fields {
			v, ok := row[f.Name]
			if !ok || v == nil {
				if !f.Nullable {
					return fmt.Errorf("row %d: column %q is required", i, f.Name)
				}
				row[f.Name] = nil
				continue
			}
			cv, err := Coerce(f.Type, v)
			if err != nil {
				return fmt.Errorf("row %d, column %q: %w", i, f.Name, err)
			}
			row[f.Name] = cv
		}
	}
	return nil
}

// Coerce converts a value to the canonical Go representation of a logical
// type, rejecting values of the wrong shape.
func Coerce(t Type, v any) (any, error) {
	switch t {
	case TypeLong, TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			// JSON round-trips integers as float64.
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case TypeDouble, TypeFloat:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case int32:
			// Days since the Unix epoch, the stored form of a date column.
			return time.Unix(int64(ts)*86400, 0).UTC(), nil
		case int64:
			return time.UnixMilli(ts).UTC(), nil
		}
	case TypeTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case int64:
			return time.UnixMilli(ts).UTC(), nil
		}
	case TypeBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s", v, v, t)
}
