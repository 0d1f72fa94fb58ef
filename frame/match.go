package frame

// Match is the outcome of a successful Pattern match.
type Match struct {
	// Frame holds the matched bytes, checksum included.
	Frame Frame
	// Offset is the position of the frame in the received buffer.
	Offset int
	// Groups holds the captured regions in pattern order.
	Groups [][]byte

	names map[string]int
}

// Group returns the i-th captured group, or nil if there is none.
func (m *Match) Group(i int) []byte {
	if m == nil || i < 0 || i >= len(m.Groups) {
		return nil
	}

	return m.Groups[i]
}

// Named returns the captured group with the given name.
func (m *Match) Named(name string) ([]byte, bool) {
	if m == nil {
		return nil, false
	}

	idx, ok := m.names[name]
	if !ok {
		return nil, false
	}

	return m.Groups[idx], true
}

// MustNamed returns the named group or nil when the pattern defines no such group.
func (m *Match) MustNamed(name string) []byte {
	b, _ := m.Named(name)
	return b
}
