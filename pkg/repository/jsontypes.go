package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONColumn adapts an arbitrary Go value to a JSONB column: Value marshals
// to JSON for writes, Scan unmarshals from the driver's []byte/string for
// reads. Used for the slice/map-typed columns (requirements, tags,
// covered_requirements, result_summary, agent_metrics, details, ...) that
// have no natural SQL column type.
type JSONColumn[T any] struct {
	V T
}

// Value implements driver.Valuer.
func (j JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (j *JSONColumn[T]) Scan(src any) error {
	if src == nil {
		var zero T
		j.V = zero
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported scan type %T for JSON column", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &j.V)
}
