package epub

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

const shiftJISPackage = `<?xml version="1.0" encoding="Shift_JIS"?>
<package version="2.0" unique-identifier="id">
  <metadata><dc:title>吾輩は猫である</dc:title></metadata>
  <manifest><item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="c1"/></spine>
</package>`

func TestDecodeOPF_UTF8(t *testing.T) {
	in := []byte(`<?xml version="1.0" encoding="UTF-8"?><package/>`)
	out, err := DecodeOPF(in)
	if err != nil {
		t.Fatalf("DecodeOPF() error = %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("DecodeOPF() = %q, want input unchanged", out)
	}

	out, err = DecodeOPF(append([]byte{0xEF, 0xBB, 0xBF}, in...))
	if err != nil {
		t.Fatalf("DecodeOPF() error = %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("DecodeOPF() = %q, want BOM stripped", out)
	}
}

func TestDecodeOPF_ShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String(shiftJISPackage)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	out, err := DecodeOPF([]byte(encoded))
	if err != nil {
		t.Fatalf("DecodeOPF() error = %v", err)
	}
	want := strings.Replace(shiftJISPackage, "Shift_JIS", "UTF-8", 1)
	if string(out) != want {
		t.Errorf("DecodeOPF() = %q, want %q", out, want)
	}

	again, err := DecodeOPF(out)
	if err != nil {
		t.Fatalf("second DecodeOPF() error = %v", err)
	}
	if !bytes.Equal(again, out) {
		t.Error("decoding an already decoded document changed it")
	}

	pkg, err := ParsePackage([]byte(encoded), "")
	if err != nil {
		t.Fatalf("ParsePackage() error = %v", err)
	}
	if len(pkg.Spine) != 1 {
		t.Errorf("Spine count = %d, want 1", len(pkg.Spine))
	}
}

func TestDecodeOPF_UTF16(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-16"?><package version="2.0"/>`
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.String(src)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	out, err := DecodeOPF([]byte(encoded))
	if err != nil {
		t.Fatalf("DecodeOPF() error = %v", err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?><package version="2.0"/>`
	if string(out) != want {
		t.Errorf("DecodeOPF() = %q, want %q", out, want)
	}
}

func TestDecodeOPF_Unsupported(t *testing.T) {
	_, err := DecodeOPF([]byte(`<?xml version="1.0" encoding="x-klingon"?><package/>`))
	if !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("DecodeOPF() error = %v, want ErrUnsupportedEncoding", err)
	}
}
