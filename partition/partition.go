// Package partition groups row batches by their partition-column values and
// derives the Hive-style path segment for each group.
package partition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"delta-forge/schema"
)

// ErrInvalidValue is returned when a partition column is null, missing, or
// holds a value with no path-segment representation.
var ErrInvalidValue = errors.New("invalid partition value")

// Batch is one group of rows sharing a partition-value tuple. Values holds
// the string-encoded value per partition column.
type Batch struct {
	Values map[string]string
	Rows   []schema.Row
}

// Path renders the partition path segments for a value tuple, in declared
// column order, e.g. "year=2024/month=3". An empty column list yields "".
func Path(columns []string, values map[string]string) string {
	if len(columns) == 0 {
		return ""
	}
	segs := make([]string, 0, len(columns))
	for _, col := range columns {
		segs = append(segs, escape(col)+"="+escape(values[col]))
	}
	return strings.Join(segs, "/")
}

// Split groups the batch's rows by the tuple of partition-column values.
// Groups come back in first-seen row order, so splitting is deterministic
// for a given batch. Splitting is pure: the input batch is not modified.
func Split(batch *schema.Batch, columns []string) ([]Batch, error) {
	if len(columns) == 0 {
		if len(batch.Rows) == 0 {
			return nil, nil
		}
		return []Batch{{Values: map[string]string{}, Rows: batch.Rows}}, nil
	}

	for _, col := range columns {
		if _, ok := batch.Schema.Field(col); !ok {
			return nil, fmt.Errorf("partition column %q not in schema: %w", col, ErrInvalidValue)
		}
	}

	index := make(map[string]int)
	var groups []Batch
	for i, row := range batch.Rows {
		values := make(map[string]string, len(columns))
		for _, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				return nil, fmt.Errorf("row %d: partition column %q is null: %w", i, col, ErrInvalidValue)
			}
			s, err := FormatValue(v)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", i, col, err)
			}
			values[col] = s
		}
		key := Path(columns, values)
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, Batch{Values: values})
		}
		groups[gi].Rows = append(groups[gi].Rows, row)
	}
	return groups, nil
}

// FormatValue renders a partition value in its canonical string form, the
// same form recorded in AddFile partitionValues.
func FormatValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("cannot encode %T as a path segment: %w", v, ErrInvalidValue)
}

// escape percent-encodes everything outside the unreserved path-safe set so
// partition values like "us/east" or "a=b" cannot corrupt the layout.
func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
