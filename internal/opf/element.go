package opf

import "strings"

// Attrs is an insertion-ordered attribute mapping.
// Setting an existing key replaces its value without moving it.
type Attrs struct {
	keys   []string
	values map[string]string
}

// NewAttrs creates an empty attribute mapping.
func NewAttrs() *Attrs {
	return &Attrs{values: make(map[string]string)}
}

// AttrsOf builds an attribute mapping from alternating key/value pairs.
func AttrsOf(kv ...string) *Attrs {
	a := NewAttrs()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// Set stores value under key.
func (a *Attrs) Set(key, value string) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key.
func (a *Attrs) Get(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Value returns the value stored under key, or "" if absent.
func (a *Attrs) Value(key string) string {
	v, _ := a.Get(key)
	return v
}

// Has reports whether key is present.
func (a *Attrs) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Delete removes key if present.
func (a *Attrs) Delete(key string) {
	if a == nil {
		return
	}
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of attributes.
func (a *Attrs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the attribute names in insertion order.
func (a *Attrs) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Clone returns an independent copy. Cloning nil yields an empty mapping.
func (a *Attrs) Clone() *Attrs {
	c := NewAttrs()
	if a == nil {
		return c
	}
	for _, k := range a.keys {
		c.Set(k, a.values[k])
	}
	return c
}

// Element describes one output element.
// An empty Name means nothing is emitted. A nil Content renders the
// element self-closing.
type Element struct {
	Name    string
	Attrs   *Attrs
	Content *string
}

// textElement builds an element with content.
func textElement(name string, attrs *Attrs, content string) Element {
	return Element{Name: name, Attrs: attrs, Content: &content}
}

// String serializes the element followed by a newline.
// Attribute values and content are written verbatim; the input grammar
// is entity-free so no escaping is applied.
func (e Element) String() string {
	if e.Name == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(e.Name)
	writeAttrs(&b, e.Attrs)
	if e.Content != nil {
		b.WriteByte('>')
		b.WriteString(*e.Content)
		b.WriteString("</")
		b.WriteString(e.Name)
		b.WriteString(">\n")
	} else {
		b.WriteString(" />\n")
	}
	return b.String()
}

// startTag serializes an opening tag followed by a newline.
func startTag(name string, attrs *Attrs) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	writeAttrs(&b, attrs)
	b.WriteString(">\n")
	return b.String()
}

func endTag(name string) string {
	return "</" + name + ">\n"
}

func writeAttrs(b *strings.Builder, attrs *Attrs) {
	for _, k := range attrs.Keys() {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(attrs.values[k])
		b.WriteByte('"')
	}
}
