package epub

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupportedEncoding is returned for XML declarations naming an
// encoding with no known decoder.
var ErrUnsupportedEncoding = errors.New("unsupported document encoding")

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16BEBOM = []byte{0xFE, 0xFF}
	utf16LEBOM = []byte{0xFF, 0xFE}

	declEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?\sencoding\s*=\s*["'])([A-Za-z0-9._:-]+)(["'])`)
)

// DecodeOPF returns the package document as UTF-8. The source encoding
// comes from a byte order mark or the XML declaration. The declaration
// of a decoded document is rewritten to name UTF-8, so decoding twice is
// harmless.
func DecodeOPF(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return data[len(utf8BOM):], nil
	case bytes.HasPrefix(data, utf16BEBOM), bytes.HasPrefix(data, utf16LEBOM):
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode UTF-16 document: %w", err)
		}
		return relabel(out), nil
	}

	m := declEncoding.FindSubmatch(data)
	if m == nil {
		return data, nil
	}
	label := strings.ToLower(string(m[2]))
	if label == "utf-8" || label == "utf8" {
		return data, nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, m[2])
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", m[2], err)
	}
	return relabel(out), nil
}

func relabel(data []byte) []byte {
	return declEncoding.ReplaceAll(data, []byte("${1}UTF-8${3}"))
}
