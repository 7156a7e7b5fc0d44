package opf

// idMarker is prepended to a candidate id until it no longer collides.
const idMarker = "x"

// IDRegistry tracks every id used in the document being converted.
// All id minting goes through Allocate so that generated ids never collide
// with ids already present in the package or elsewhere in the book.
type IDRegistry struct {
	ids map[string]struct{}
}

// NewIDRegistry creates a registry seeded with ids already in use.
func NewIDRegistry(seed ...string) *IDRegistry {
	r := &IDRegistry{ids: make(map[string]struct{}, len(seed))}
	for _, id := range seed {
		r.Reserve(id)
	}
	return r
}

// Contains reports whether id is already taken.
func (r *IDRegistry) Contains(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Reserve marks an id found in the document as taken.
func (r *IDRegistry) Reserve(id string) {
	if id == "" {
		return
	}
	r.ids[id] = struct{}{}
}

// Allocate returns candidate, or candidate prefixed with idMarker as many
// times as needed, such that the result is not yet taken. The result is
// reserved before it is returned.
func (r *IDRegistry) Allocate(candidate string) string {
	id := candidate
	for r.Contains(id) {
		id = idMarker + id
	}
	r.Reserve(id)
	return id
}

// Len returns the number of reserved ids.
func (r *IDRegistry) Len() int {
	return len(r.ids)
}
