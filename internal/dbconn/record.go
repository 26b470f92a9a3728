package dbconn

import "fmt"

// Row is a single result row: an ordered list of field names paired with
// their values. It supports both positional and name-based access and is
// partially immutable — assigning to a known name overwrites in place,
// assigning to an unknown name appends a new field, but the bulk mutators
// a generic map would offer (clear, pop, delete-by-key, reverse) are
// deliberately not implemented so a Row can't be silently reshaped by a
// caller holding a reference.
type Row struct {
	names  []string
	values []interface{}
	index  map[string]int
}

// NewRow builds a Row from parallel name/value slices. The slices must be
// the same length; ownership of both is taken by the Row.
func NewRow(names []string, values []interface{}) *Row {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return &Row{names: names, values: values, index: idx}
}

// Len returns the number of fields in the row.
func (r *Row) Len() int { return len(r.values) }

// Names returns the field-name tuple, in column order.
func (r *Row) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// At returns the value at a positional index.
func (r *Row) At(i int) interface{} {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Get returns the value for a field name and whether it was present.
func (r *Row) Get(name string) (interface{}, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Set overwrites a known field in place, or appends a new field if name
// is not already present. This is the only mutation a Row allows.
func (r *Row) Set(name string, value interface{}) {
	if i, ok := r.index[name]; ok {
		r.values[i] = value
		return
	}
	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	r.values = append(r.values, value)
}

// Equal compares the row against any name-to-value mapping: equal iff
// every key in other is present with an equal value and the row carries
// no extra fields beyond it.
func (r *Row) Equal(other map[string]interface{}) bool {
	if len(other) != len(r.names) {
		return false
	}
	for name, want := range other {
		got, ok := r.Get(name)
		if !ok || !deepEqual(got, want) {
			return false
		}
	}
	return true
}

func deepEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// SelectResult is an ordered sequence of Rows sharing one field-name
// tuple, returned by a query that yields a result set.
type SelectResult struct {
	Fields []string
	Rows   []*Row
}

// Len is the number of rows in the result.
func (s *SelectResult) Len() int { return len(s.Rows) }

// First returns the first row, or nil if the result set is empty.
func (s *SelectResult) First() *Row {
	if len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}
