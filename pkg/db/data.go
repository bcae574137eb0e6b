package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one row keyed by column name.
type Record map[string]any

// Field is a column assignment in a create or update body.
type Field struct {
	Value  any
	Column string
}

// Data is an ordered list of assignments; column order follows the request body.
type Data []Field

// Columns returns the column names in order.
func (d Data) Columns() []string {
	cols := make([]string, len(d))
	for i, f := range d {
		cols[i] = f.Column
	}
	return cols
}

// Map returns the assignments as a map, e.g. for event payloads.
func (d Data) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, f := range d {
		m[f.Column] = f.Value
	}
	return m
}

var (
	ErrInvalidBody = errors.New("invalid JSON body")
	ErrEmptyBody   = errors.New("empty request body")
)

// DecodeData parses a JSON object into Data, keeping key order. Numbers become
// int64 when integral, else float64. Nested objects and arrays are stored as JSON text.
// A repeated key keeps its last value at its first position.
func DecodeData(body []byte) (Data, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, ErrInvalidBody
	}

	var data Data
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrInvalidBody
		}
		key, ok := tok.(string)
		if !ok {
			return nil, ErrInvalidBody
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, ErrInvalidBody
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, ErrInvalidBody
		}

		if i, seen := index[key]; seen {
			data[i].Value = value
			continue
		}
		index[key] = len(data)
		data = append(data, Field{Column: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, ErrInvalidBody
	}
	if dec.More() {
		return nil, ErrInvalidBody
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	return data, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	switch raw[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return v, nil
}

// scanRecords reads all rows into Records. []byte values are returned as strings.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := []Record{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}
