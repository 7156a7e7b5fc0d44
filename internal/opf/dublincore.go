package opf

import (
	"fmt"
	"strings"
)

// allowedDCTypes are the dc:type values defined by EPUB 3.
var allowedDCTypes = map[string]bool{
	"dictionary":           true,
	"index":                true,
	"distributable-object": true,
	"edupub":               true,
	"preview":              true,
	"teacher-edition":      true,
	"teacher-guide":        true,
	"widget":               true,
}

// mapDublinCore rewrites one dc:* element of an OPF 2 package into its
// OPF 3 form. It may return no elements, one, or a main element followed
// by refining meta elements.
func (st *state) mapDublinCore(name string, attrs *Attrs, content *string) []Element {
	if content == nil || (*content == "" && !st.opts.KeepEmptyDC) {
		return nil
	}
	text := *content
	attrs = attrs.Clone()

	switch name {
	case "dc:title":
		return st.mapTitle(attrs, text)
	case "dc:type":
		if !allowedDCTypes[text] {
			return nil
		}
		return []Element{textElement(name, NewAttrs(), text)}
	case "dc:date":
		return st.mapDate(attrs, text)
	case "dc:creator":
		st.creatorCount++
		return st.mapAgent(name, fmt.Sprintf("create%d", st.creatorCount), attrs, text)
	case "dc:contributor":
		st.contributorCount++
		return st.mapAgent(name, fmt.Sprintf("contrib%d", st.contributorCount), attrs, text)
	case "dc:identifier":
		return st.mapIdentifier(attrs, text)
	}

	attrs.Delete("id")
	clean := NewAttrs()
	for _, k := range attrs.Keys() {
		if !strings.HasPrefix(k, legacyPrefix) {
			clean.Set(k, attrs.Value(k))
		}
	}
	return []Element{textElement(name, clean, text)}
}

func (st *state) mapTitle(attrs *Attrs, text string) []Element {
	st.titleCount++
	var id string
	if st.titleCount == 1 && st.titleID != "" {
		// Already allocated for a title sort seen before the first title.
		id = st.titleID
	} else {
		id = st.ids.Allocate(fmt.Sprintf("title%d", st.titleCount))
	}
	attrs.Set("id", id)
	out := []Element{textElement("dc:title", attrs, text)}
	if st.titleCount == 1 {
		st.titleID = id
		out = append(out, textElement("meta", AttrsOf("refines", "#"+id, "property", "title-type"), "main"))
	}
	return out
}

// mapDate keeps a single publication date. A creation date becomes
// dcterms:created and everything else is dropped.
func (st *state) mapDate(attrs *Attrs, text string) []Element {
	event := attrs.Value("opf:event")
	if event == "" {
		event = attrs.Value("event")
	}
	switch event {
	case "creation":
		return []Element{textElement("meta", AttrsOf("property", "dcterms:created"), text)}
	case "publication", "issued":
		if st.dateEmitted {
			return nil
		}
		st.dateEmitted = true
		return []Element{textElement("dc:date", NewAttrs(), text)}
	}
	return nil
}

func (st *state) mapAgent(name, candidate string, attrs *Attrs, text string) []Element {
	id := st.ids.Allocate(candidate)
	attrs.Set("id", id)

	role, hasRole := attrs.Get("opf:role")
	attrs.Delete("opf:role")
	fileAs, hasFileAs := attrs.Get("opf:file-as")
	attrs.Delete("opf:file-as")

	out := []Element{textElement(name, attrs, text)}
	if hasRole {
		out = append(out, textElement("meta",
			AttrsOf("refines", "#"+id, "property", "role", "scheme", "marc:relators"), role))
	}
	if hasFileAs {
		out = append(out, textElement("meta", AttrsOf("refines", "#"+id, "property", "file-as"), fileAs))
	}
	return out
}

func (st *state) mapIdentifier(attrs *Attrs, text string) []Element {
	id := attrs.Value("id")
	st.ids.Reserve(id)

	if scheme, ok := attrs.Get("opf:scheme"); ok {
		attrs.Delete("opf:scheme")
		if !strings.HasPrefix(text, "urn:") {
			text = "urn:" + strings.ToLower(scheme) + ":" + text
		}
	}
	if id != "" && id == st.uniqueIDRef {
		st.uid = text
	}
	return []Element{textElement("dc:identifier", attrs, text)}
}
