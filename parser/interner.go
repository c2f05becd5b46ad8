package parser

// Interner implements string interning to reduce memory usage.
//
// Large ledger exports repeat the same few values on every row:
// - Journal codes (e.g., "VT", "BQ")
// - Account numbers and names (e.g., "411000", "Clients")
// - Currency codes (e.g., "EUR")
//
// By maintaining a pool of canonical strings, every occurrence shares one
// string instance.
type Interner struct {
	pool map[string]string
}

// NewInterner creates a new string interner with the given initial capacity.
func NewInterner(capacity int) *Interner {
	return &Interner{
		pool: make(map[string]string, capacity),
	}
}

// Intern returns the canonical version of the string.
func (i *Interner) Intern(s string) string {
	if interned, ok := i.pool[s]; ok {
		return interned
	}
	i.pool[s] = s
	return s
}

// Size returns the number of unique strings in the intern pool.
func (i *Interner) Size() int {
	return len(i.pool)
}

// Reset clears the intern pool.
func (i *Interner) Reset() {
	i.pool = make(map[string]string)
}
