package opf

import "strings"

// containerNames are the structural elements tracked on the path stack.
// Every other element is a leaf whose event is delivered at its end tag.
var containerNames = map[string]bool{
	xmlDeclName:   true,
	"package":     true,
	"metadata":    true,
	"dc-metadata": true,
	"x-metadata":  true,
	"manifest":    true,
	"spine":       true,
	"tours":       true,
	"guide":       true,
}

// TagEvent is a fully formed element occurrence.
type TagEvent struct {
	// Path holds the enclosing container names, outermost first.
	Path  []string
	Name  string
	Attrs *Attrs
	// Content is nil for self-closing elements and stray end tags. An
	// element opened and closed with nothing between them has "".
	Content *string
	// Closing marks the event emitted for a container end tag.
	Closing bool
}

// PathPrefix returns the dot-joined container path.
func (e TagEvent) PathPrefix() string {
	return strings.Join(e.Path, ".")
}

// Within reports whether any enclosing container name contains region.
func (e TagEvent) Within(region string) bool {
	return strings.Contains(e.PathPrefix(), region)
}

// DirectlyIn reports whether the innermost container path ends with region.
func (e TagEvent) DirectlyIn(region string) bool {
	return strings.HasSuffix(e.PathPrefix(), region)
}

// EventStream turns tokens into TagEvents while tracking the container path.
type EventStream struct {
	tokens       *Tokenizer
	path         []string
	pendingAttrs *Attrs
	pendingText  *string
	// pendingName is the leaf whose begin tag was seen last.
	pendingName string
}

// NewEventStream creates an event stream over a package document.
func NewEventStream(doc string) *EventStream {
	return &EventStream{tokens: NewTokenizer(doc)}
}

// Next returns the next event. It returns false at end of input.
func (s *EventStream) Next() (TagEvent, bool) {
	for {
		tok, ok := s.tokens.Next()
		if !ok {
			return TagEvent{}, false
		}

		if tok.Kind == TokenText {
			text := strings.TrimRight(tok.Text, " \t\r\n")
			s.pendingText = &text
			continue
		}

		tag := ParseTag(tok.Text)
		switch tag.Kind {
		case TagBegin:
			s.pendingText = nil
			s.pendingName = ""
			if containerNames[tag.Name] {
				s.path = append(s.path, tag.Name)
				return s.event(tag.Name, tag.Attrs, nil, false), true
			}
			s.pendingAttrs = tag.Attrs
			s.pendingName = tag.Name

		case TagEnd:
			attrs := s.pendingAttrs
			if attrs == nil {
				attrs = NewAttrs()
			}
			s.pendingAttrs = nil
			opened := s.pendingName == tag.Name
			s.pendingName = ""
			if containerNames[tag.Name] {
				s.pop(tag.Name)
				s.pendingText = nil
				return s.event(tag.Name, attrs, nil, true), true
			}
			content := s.pendingText
			s.pendingText = nil
			if content == nil && opened {
				empty := ""
				content = &empty
			}
			return s.event(tag.Name, attrs, content, false), true

		case TagSelfClosing:
			s.pendingText = nil
			s.pendingName = ""
			return s.event(tag.Name, tag.Attrs, nil, false), true
		}
	}
}

// pop removes the innermost occurrence of name from the path. A stray end
// tag for a container that is not open leaves the path untouched.
func (s *EventStream) pop(name string) {
	for i := len(s.path) - 1; i >= 0; i-- {
		if s.path[i] == name {
			s.path = s.path[:i]
			return
		}
	}
}

func (s *EventStream) event(name string, attrs *Attrs, content *string, closing bool) TagEvent {
	return TagEvent{
		Path:    append([]string(nil), s.path...),
		Name:    name,
		Attrs:   attrs,
		Content: content,
		Closing: closing,
	}
}
