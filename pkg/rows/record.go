// Package rows splits multi-field records into per-attribute collections keyed by a row
// identifier, and reassembles arbitrary attribute subsets with indexed joins on the row
// identifier.
//
// Row identifiers are assigned to whole records by the interning algorithm, so a row identifier
// is stable while the record is unchanged. Changing a field is a retraction of the old record and
// an insertion of the new one: the cells of the old row are retracted and a new row is minted.
package rows

import (
	"encoding/json"
	"fmt"
)

// Record is a tuple of string fields in a canonical encoding, so that equal tuples are equal
// records and records can be used as map keys and ordered.
type Record string

// NewRecord creates a record from its fields.
func NewRecord(fields ...string) Record {
	if fields == nil {
		fields = []string{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		// a string slice always marshals
		panic(err)
	}
	return Record(b)
}

// Fields decodes the fields of the record.
func (r Record) Fields() ([]string, error) {
	var fields []string
	if err := json.Unmarshal([]byte(r), &fields); err != nil {
		return nil, fmt.Errorf("invalid record %q: %w", string(r), err)
	}
	return fields, nil
}

// Arity returns the number of fields, or -1 for a malformed record.
func (r Record) Arity() int {
	fields, err := r.Fields()
	if err != nil {
		return -1
	}
	return len(fields)
}

func (r Record) String() string { return string(r) }

// Cell is the value of one attribute of a row.
type Cell struct {
	Row   uint64
	Value string
}

func (c Cell) String() string { return fmt.Sprintf("%d:%s", c.Row, c.Value) }
