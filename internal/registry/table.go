package registry

// Table is a plain ID-keyed map used for per-resource child tables (an
// instance's threads, tokens and token reservations). Unlike the Registry it
// does not issue IDs; keys come from the identity table or are virtual
// addresses.
type Table[T any] struct {
	m map[uint64]T
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{m: make(map[uint64]T)}
}

// Insert stores val under key, replacing any previous value.
func (t *Table[T]) Insert(key uint64, val T) {
	t.m[key] = val
}

// Get returns the value for key.
func (t *Table[T]) Get(key uint64) (T, bool) {
	v, ok := t.m[key]
	return v, ok
}

// Remove deletes and returns the value for key.
func (t *Table[T]) Remove(key uint64) (T, bool) {
	v, ok := t.m[key]
	if ok {
		delete(t.m, key)
	}
	return v, ok
}

// Contains reports whether key is present.
func (t *Table[T]) Contains(key uint64) bool {
	_, ok := t.m[key]
	return ok
}

// Len reports the number of entries.
func (t *Table[T]) Len() int { return len(t.m) }

// Range calls fn for each entry until fn returns false.
func (t *Table[T]) Range(fn func(key uint64, val T) bool) {
	for k, v := range t.m {
		if !fn(k, v) {
			return
		}
	}
}
