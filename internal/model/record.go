package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
)

// System fields every record carries in addition to its domain fields
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// IsReservedField reports whether name is managed by the store
func IsReservedField(name string) bool {
	return name == FieldID || name == FieldCreatedAt || name == FieldUpdatedAt
}

// Record is a single entity stored in a table
type Record struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// Value returns the value of a field. System fields are addressable by
// their JSON names.
func (r *Record) Value(field string) (any, bool) {
	switch field {
	case FieldID:
		return r.ID, true
	case FieldCreatedAt:
		return r.CreatedAt, true
	case FieldUpdatedAt:
		return r.UpdatedAt, true
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	fields := make(map[string]any, len(r.Fields))
	if err := deepcopy.Copy(&fields, r.Fields); err != nil {
		for k, v := range r.Fields {
			fields[k] = v
		}
	}
	out.Fields = fields
	return out
}

// MarshalJSON flattens domain fields next to the system fields
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[FieldID] = r.ID
	out[FieldCreatedAt] = r.CreatedAt
	out[FieldUpdatedAt] = r.UpdatedAt
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID, _ = raw[FieldID].(string)
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{FieldCreatedAt, &r.CreatedAt}, {FieldUpdatedAt, &r.UpdatedAt}} {
		if s, ok := raw[f.name].(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return err
			}
			*f.dst = t
		}
	}
	delete(raw, FieldID)
	delete(raw, FieldCreatedAt)
	delete(raw, FieldUpdatedAt)
	r.Fields = raw
	return nil
}
