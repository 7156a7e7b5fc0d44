package opf

import "strings"

// TokenKind distinguishes text runs from tag spans.
type TokenKind int

const (
	TokenText TokenKind = iota // character data between tags
	TokenTag                   // a complete tag span including delimiters
)

// Token is a single unit produced by the Tokenizer.
type Token struct {
	Kind TokenKind
	Text string
}

// Tokenizer splits a package document into text runs and tag spans.
// Every call to Next consumes at least one byte, so a scan over malformed
// input always terminates.
type Tokenizer struct {
	src string
	pos int
}

// NewTokenizer creates a tokenizer positioned at the start of src.
func NewTokenizer(src string) *Tokenizer {
	return &Tokenizer{src: src}
}

// Next returns the next token. It returns false at end of input.
func (t *Tokenizer) Next() (Token, bool) {
	p := t.pos
	if p >= len(t.src) {
		return Token{}, false
	}

	if t.src[p] != '<' {
		end := t.indexFrom('<', p)
		if end < 0 {
			end = len(t.src)
		}
		return t.text(p, end), true
	}

	// Comment bodies may contain '<' and '>' so scan for the terminator.
	if strings.HasPrefix(t.src[p:], "<!--") {
		end := strings.Index(t.src[p+4:], "-->")
		if end < 0 {
			return t.text(p, len(t.src)), true
		}
		return t.tag(p, p+4+end+3), true
	}

	gt := t.indexFrom('>', p+1)
	lt := t.indexFrom('<', p+1)
	if lt >= 0 && (gt < 0 || lt < gt) {
		// Unclosed tag: resynchronize at the next '<'.
		return t.text(p, lt), true
	}
	if gt < 0 {
		return t.text(p, len(t.src)), true
	}
	return t.tag(p, gt+1), true
}

func (t *Tokenizer) text(start, end int) Token {
	t.pos = end
	return Token{Kind: TokenText, Text: t.src[start:end]}
}

func (t *Tokenizer) tag(start, end int) Token {
	t.pos = end
	return Token{Kind: TokenTag, Text: t.src[start:end]}
}

func (t *Tokenizer) indexFrom(c byte, from int) int {
	if from >= len(t.src) {
		return -1
	}
	i := strings.IndexByte(t.src[from:], c)
	if i < 0 {
		return -1
	}
	return from + i
}
