package opf

import "strings"

// TagKind is the syntactic kind of a tag span.
type TagKind int

const (
	TagBegin TagKind = iota
	TagEnd
	TagSelfClosing
)

func (k TagKind) String() string {
	switch k {
	case TagBegin:
		return "begin"
	case TagEnd:
		return "end"
	case TagSelfClosing:
		return "self-closing"
	default:
		return "unknown"
	}
}

const (
	commentName  = "!--"
	xmlDeclName  = "?xml"
	legacyPrefix = "opf:"
)

// Tag is a classified tag span.
type Tag struct {
	Kind  TagKind
	Name  string
	Attrs *Attrs
}

// ParseTag classifies a tag span such as `<dc:title id="t">` or `</item>`.
// Tag and attribute names are lower-cased and a leading "opf:" prefix is
// removed from the tag name. Comments are reported as self-closing tags
// named "!--" whose trimmed body is stored in the "comment" attribute.
func ParseTag(s string) Tag {
	tag := Tag{Kind: TagBegin, Attrs: NewAttrs()}

	if strings.HasPrefix(s, "<!--") {
		body := strings.TrimPrefix(s, "<!--")
		body = strings.TrimSuffix(body, "-->")
		tag.Kind = TagSelfClosing
		tag.Name = commentName
		tag.Attrs.Set("comment", strings.TrimSpace(body))
		return tag
	}

	n := len(s)
	p := 1
	p = skipSpace(s, p)
	isEnd := false
	if p < n && s[p] == '/' {
		isEnd = true
		p = skipSpace(s, p+1)
	}

	b := p
	for p < n && !isNameStop(s[p]) {
		p++
	}
	name := strings.ToLower(s[b:p])
	name = strings.TrimPrefix(name, legacyPrefix)
	tag.Name = name

	if isEnd {
		tag.Kind = TagEnd
		return tag
	}

	p = parseAttrs(s, p, tag.Attrs)
	if strings.IndexByte(s[p:], '/') >= 0 {
		tag.Kind = TagSelfClosing
	}
	return tag
}

// parseAttrs reads name=value pairs starting at p and returns the position
// after the last pair. Later duplicates overwrite earlier values.
func parseAttrs(s string, p int, attrs *Attrs) int {
	n := len(s)
	for p < n && strings.IndexByte(s[p:], '=') >= 0 {
		p = skipSpace(s, p)
		b := p
		for p < n && s[p] != '=' {
			p++
		}
		key := strings.ToLower(strings.TrimRight(s[b:p], " \t\r\n"))
		p = skipSpace(s, p+1)

		var val string
		if p < n && (s[p] == '"' || s[p] == '\'') {
			q := s[p]
			p++
			b = p
			for p < n && s[p] != q {
				p++
			}
			val = s[b:p]
			if p < n {
				p++
			}
		} else {
			b = p
			for p < n && s[p] != '>' && s[p] != '/' && !isSpace(s[p]) {
				p++
			}
			val = s[b:p]
		}
		attrs.Set(key, val)
	}
	if p > n {
		p = n
	}
	return p
}

func skipSpace(s string, p int) int {
	for p < len(s) && isSpace(s[p]) {
		p++
	}
	return p
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isNameStop(c byte) bool {
	return c == '>' || c == '/' || c == '"' || c == '\'' || isSpace(c)
}
