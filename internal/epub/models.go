package epub

// Package is the subset of an OPF package document needed to prepare a
// conversion: its version, ids and reading order.
type Package struct {
	Version  string
	UniqueID string
	// Dir is the directory of the package document inside the book.
	Dir           string
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // manifest ids in document order
	Spine         []SpineItem
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID        string
	Href      string // book path, relative to the container root
	MediaType string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// Landmark is a guide reference resolved to a book path.
type Landmark struct {
	Type  string
	Title string
	Href  string // book path, with fragment if any
}
