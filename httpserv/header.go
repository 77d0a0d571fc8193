package httpserv

import "strings"

// Field is one header name/value pair.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Name comparison is
// case-insensitive; duplicates are kept in the order they were added.
type Header struct {
	fields []Field
}

// Get returns the first value for name, or "".
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h *Header) Values(name string) []string {
	var vv []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vv = append(vv, f.Value)
		}
	}
	return vv
}

// Add appends a field, keeping any existing values for name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every value for name with a single one.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Has reports whether at least one field named name exists.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Fields returns the fields in order. The slice is shared; callers must
// not mutate it.
func (h *Header) Fields() []Field {
	return h.fields
}

// Len returns the number of fields.
func (h *Header) Len() int { return len(h.fields) }

// Clone returns a deep copy.
func (h *Header) Clone() Header {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return Header{fields: out}
}
