// Package wire implements the HTTP/1.1 request/response codec: request
// serialization, response head parsing, chunked transfer-encoding framing,
// gzip/deflate decompression, and the server-sent-events line assembler
// (spec.md §4.2).
package wire

import "strings"

// Headers is a case-insensitive, order-preserving, duplicate-preserving
// header map. Lookup matches spec.md §3's requirement ("case-insensitive
// for lookup, original case preserved on the wire"); it generalizes the
// teacher's single-valued application/http.Headers
// (application/http/common.go) to keep every occurrence of a repeated
// header, as spec.md §4.2 requires ("duplicate names ... retain both on the
// wire").
type Headers struct {
	order []header         // insertion order, original case, one entry per line
	index map[string][]int // lowercase name -> indices into order
}

type header struct {
	Name  string
	Value string
}

// NewHeaders builds an empty Headers ready for use.
func NewHeaders() *Headers {
	return &Headers{index: make(map[string][]int)}
}

func lower(s string) string { return strings.ToLower(s) }

// Add appends a header occurrence, preserving any prior occurrences of the
// same name.
func (h *Headers) Add(name, value string) {
	h.order = append(h.order, header{Name: name, Value: value})
	key := lower(name)
	h.index[key] = append(h.index[key], len(h.order)-1)
}

// Set replaces every existing occurrence of name with a single occurrence
// carrying value.
func (h *Headers) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes every occurrence of name.
func (h *Headers) Del(name string) {
	key := lower(name)
	idxs, ok := h.index[key]
	if !ok {
		return
	}
	remove := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		remove[i] = true
	}
	newOrder := h.order[:0:0]
	for i, hd := range h.order {
		if remove[i] {
			continue
		}
		newOrder = append(newOrder, hd)
	}
	h.order = newOrder
	delete(h.index, key)
	h.reindex()
}

func (h *Headers) reindex() {
	h.index = make(map[string][]int, len(h.order))
	for i, hd := range h.order {
		key := lower(hd.Name)
		h.index[key] = append(h.index[key], i)
	}
}

// Get returns the last occurrence of name, matching spec.md §4.2
// ("duplicate names preserve the last occurrence for lookup").
func (h *Headers) Get(name string) (string, bool) {
	idxs, ok := h.index[lower(name)]
	if !ok || len(idxs) == 0 {
		return "", false
	}
	return h.order[idxs[len(idxs)-1]].Value, true
}

// Has reports whether name is present under a case-insensitive match,
// regardless of value, for the "inject if absent" check in spec.md §4.2.
func (h *Headers) Has(name string) bool {
	idxs, ok := h.index[lower(name)]
	return ok && len(idxs) > 0
}

// Values returns every occurrence of name in wire order.
func (h *Headers) Values(name string) []string {
	idxs, ok := h.index[lower(name)]
	if !ok {
		return nil
	}
	vals := make([]string, len(idxs))
	for i, idx := range idxs {
		vals[i] = h.order[idx].Value
	}
	return vals
}

// Fields returns every header line in wire order, original name casing
// preserved.
func (h *Headers) Fields() [][2]string {
	fields := make([][2]string, len(h.order))
	for i, hd := range h.order {
		fields[i] = [2]string{hd.Name, hd.Value}
	}
	return fields
}

// Equal reports whether two Headers hold the same names (compared
// case-insensitively, in any order) with the same values per name (compared
// in wire order), used by the round-trip testable property in spec.md §8
// ("serializing a parsed response's headers and re-parsing yields an equal
// header mapping under case-insensitive lookup").
func (h *Headers) Equal(other *Headers) bool {
	if len(h.index) != len(other.index) {
		return false
	}
	for key, idxs := range h.index {
		oidxs, ok := other.index[key]
		if !ok || len(idxs) != len(oidxs) {
			return false
		}
		for i := range idxs {
			if h.order[idxs[i]].Value != other.order[oidxs[i]].Value {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy, used when the executor synthesizes a
// follow-up redirect request carrying "only user-supplied headers"
// (spec.md §4.7).
func (h *Headers) Clone() *Headers {
	clone := NewHeaders()
	for _, hd := range h.order {
		clone.Add(hd.Name, hd.Value)
	}
	return clone
}
