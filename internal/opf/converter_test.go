package opf

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var fixedNow = func() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("JST", 9*60*60))
}

func testOptions() Options {
	return Options{
		KeepGuide: true,
		Now:       fixedNow,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func parseOutput(t *testing.T, out string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	return doc
}

const minimalOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>T</dc:title>
    <dc:language>fr</dc:language>
  </metadata>
  <manifest>
    <item id="i1" href="text/i1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="i1"/>
  </spine>
</package>`

func TestConvert_Minimal(t *testing.T) {
	res := Convert(minimalOPF, Properties{}, nil, testOptions())

	want := `<?xml version="1.0" encoding="utf-8" standalone="no"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid" prefix="rendition: http://www.idpf.org/vocab/rendition/#">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:title id="title1">T</dc:title>
<meta refines="#title1" property="title-type">main</meta>
<dc:language>fr</dc:language>
<meta property="dcterms:modified">2024-05-05T22:08:09Z</meta>
</metadata>
<manifest>
<item id="i1" href="text/i1.xhtml" media-type="application/xhtml+xml" />
<item id="navid" media-type="application/xhtml+xml" href="nav.xhtml" properties="nav" />
</manifest>
<spine>
<itemref idref="i1" />
<itemref idref="navid" />
</spine>
</package>
`
	if res.OPF != want {
		t.Errorf("OPF =\n%s\nwant\n%s", res.OPF, want)
	}
	if res.Language != "fr" {
		t.Errorf("Language = %q, want %q", res.Language, "fr")
	}
	if res.NavID != "navid" {
		t.Errorf("NavID = %q, want %q", res.NavID, "navid")
	}
	if len(res.Guide) != 0 {
		t.Errorf("Guide count = %d, want 0", len(res.Guide))
	}
}

const fullOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <meta name="calibre:title_sort" content="Book, The"/>
    <dc:title>The Book</dc:title>
    <dc:title>A Subtitle</dc:title>
    <dc:creator opf:role="aut" opf:file-as="Doe, John">John Doe</dc:creator>
    <dc:creator opf:role="ill">Ann Artist</dc:creator>
    <dc:contributor opf:role="edt">Ed Itor</dc:contributor>
    <dc:identifier id="bookid" opf:scheme="ISBN">9780000000002</dc:identifier>
    <dc:date opf:event="creation">2019-01-01</dc:date>
    <dc:date opf:event="publication">2020-02-02</dc:date>
    <dc:date opf:event="modification">2021-03-03</dc:date>
    <dc:date>2022-04-04</dc:date>
    <dc:type>Text</dc:type>
    <dc:subject></dc:subject>
    <dc:language>ja</dc:language>
    <meta name="calibre:series" content="Saga"/>
    <meta name="calibre:series_index" content="2"/>
    <meta name="cover" content="cover-img"/>
    <meta name="page-progression-direction" content="rtl"/>
    <meta name="fixed-layout" content="true"/>
    <meta name="orientation-lock" content="portrait"/>
    <meta name="generator" content="Sigil" id="gen"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="pagemap" href="page-map.xml" media-type="application/oebps-page-map+xml"/>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="font1" href="fonts/a.ttf" media-type="application/x-font-ttf"/>
    <item id="font2" href="fonts/b.otf" media-type="application/x-font-opentype"/>
    <item id="c1" href="text/c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/c2.xhtml" media-type="application/xhtml+xml"/>
    <item id="smil1" href="smil/c1.smil" media-type="application/smil+xml"/>
  </manifest>
  <spine toc="ncx" page-progression-direction="ltr">
    <itemref idref="c1" properties="page-spread-left"/>
    <itemref idref="c2" linear="no"/>
  </spine>
  <guide>
    <reference type="cover" title="Cover" href="text/c1.xhtml"/>
    <reference type="toc" title="Contents" href="text/c2.xhtml#toc"/>
  </guide>
  <tours>
    <tour id="t1" title="Tour"><site title="S" href="text/c1.xhtml"/></tour>
  </tours>
</package>`

func fullProperties() Properties {
	return Properties{
		Manifest: map[string]string{"c1": "svg scripted", "cover-img": "svg"},
		Spine:    map[string]string{"c1": "rendition:layout-pre-paginated", "c2": "page-spread-right"},
		Overlays: map[string]MediaOverlay{
			"smil1": {Duration: 12.25, TextIDs: []string{"c1"}},
			"smil2": {Duration: 1.5, TextIDs: []string{"c9"}},
		},
	}
}

func TestConvert_Full(t *testing.T) {
	var logs bytes.Buffer
	opts := testOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	res := Convert(fullOPF, fullProperties(), []string{"navid", "series", "title1"}, opts)
	out := res.OPF

	mustContain := []string{
		`<meta refines="#xtitle1" property="file-as">Book, The</meta>`,
		`<dc:title id="xtitle1">The Book</dc:title>`,
		`<meta refines="#xtitle1" property="title-type">main</meta>`,
		`<dc:title id="title2">A Subtitle</dc:title>`,
		`<dc:creator id="create1">John Doe</dc:creator>`,
		`<meta refines="#create1" property="role" scheme="marc:relators">aut</meta>`,
		`<meta refines="#create1" property="file-as">Doe, John</meta>`,
		`<dc:creator id="create2">Ann Artist</dc:creator>`,
		`<meta refines="#create2" property="role" scheme="marc:relators">ill</meta>`,
		`<dc:contributor id="contrib1">Ed Itor</dc:contributor>`,
		`<dc:identifier id="bookid">urn:isbn:9780000000002</dc:identifier>`,
		`<meta property="dcterms:created">2019-01-01</meta>`,
		`<dc:date>2020-02-02</dc:date>`,
		`<dc:language>ja</dc:language>`,
		`<meta name="cover" content="cover-img" />`,
		`<meta name="page-progression-direction" content="rtl" />`,
		`<meta property="rendition:layout">pre-paginated</meta>`,
		`<meta property="rendition:orientation">portrait</meta>`,
		`<meta name="generator" content="Sigil" />`,
		`<meta id="xseries" property="belongs-to-collection">Saga</meta>`,
		`<meta refines="#xseries" property="collection-type">series</meta>`,
		`<meta refines="#xseries" property="group-position">2</meta>`,
		`<meta property="dcterms:modified">2024-05-05T22:08:09Z</meta>`,
		`<meta property="media:duration" refines="#smil1">12.250</meta>`,
		`<meta property="media:duration" refines="#smil2">1.500</meta>`,
		`<meta property="media:duration">13.750</meta>`,
		`<meta property="media:active-class">-epub-media-overlay-active</meta>`,
		`<meta property="media:playback-active-class">-epub-media-overlay-playback-active</meta>`,
		`<item id="cover-img" href="images/cover.jpg" media-type="image/jpeg" properties="svg cover-image" />`,
		`<item id="font1" href="fonts/a.ttf" media-type="application/vnd.ms-opentype" />`,
		`<item id="font2" href="fonts/b.otf" media-type="application/vnd.ms-opentype" />`,
		`<item id="c1" href="text/c1.xhtml" media-type="application/xhtml+xml" properties="svg scripted" media-overlay="smil1" />`,
		`<item id="c2" href="text/c2.xhtml" media-type="application/xhtml+xml" />`,
		`<item id="xnavid" media-type="application/xhtml+xml" href="nav.xhtml" properties="nav" />`,
		`<spine page-progression-direction="rtl" toc="ncx" page-map="pagemap">`,
		`<itemref idref="c1" properties="page-spread-left rendition:layout-pre-paginated" />`,
		`<itemref idref="c2" linear="no" properties="page-spread-right" />`,
		`<itemref idref="xnavid" />`,
		"<guide>\n" +
			`<reference type="cover" title="Cover" href="text/c1.xhtml" />` + "\n" +
			`<reference type="toc" title="Contents" href="text/c2.xhtml#toc" />` + "\n" +
			"</guide>\n</package>\n",
	}
	for _, s := range mustContain {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q", s)
		}
	}

	mustNotContain := []string{"2021-03-03", "2022-04-04", "dc:type", "dc:subject", "calibre:", "tour", "site", `id="gen"`, "fixed-layout", "orientation-lock"}
	for _, s := range mustNotContain {
		if strings.Contains(out, s) {
			t.Errorf("output unexpectedly contains %q", s)
		}
	}

	if !strings.HasSuffix(out, "</package>\n") {
		t.Errorf("output does not end with the package end tag")
	}
	if n := strings.Count(out, "</package>"); n != 1 {
		t.Errorf("package end tag count = %d, want 1", n)
	}

	if res.Language != "ja" {
		t.Errorf("Language = %q, want %q", res.Language, "ja")
	}
	if res.UniqueID != "urn:isbn:9780000000002" {
		t.Errorf("UniqueID = %q, want %q", res.UniqueID, "urn:isbn:9780000000002")
	}
	if !res.HasHTMLTOC {
		t.Error("HasHTMLTOC = false, want true")
	}
	if res.NavID != "xnavid" {
		t.Errorf("NavID = %q, want %q", res.NavID, "xnavid")
	}
	wantGuide := []GuideRef{
		{Type: "cover", Title: "Cover", Href: "text/c1.xhtml"},
		{Type: "toc", Title: "Contents", Href: "text/c2.xhtml#toc"},
	}
	if len(res.Guide) != len(wantGuide) {
		t.Fatalf("Guide count = %d, want %d", len(res.Guide), len(wantGuide))
	}
	for i := range wantGuide {
		if res.Guide[i] != wantGuide[i] {
			t.Errorf("Guide[%d] = %+v, want %+v", i, res.Guide[i], wantGuide[i])
		}
	}

	if n := strings.Count(logs.String(), "adding media overlay metadata"); n != 2 {
		t.Errorf("info log count = %d, want 2\n%s", n, logs.String())
	}

	doc := parseOutput(t, out)
	if n := doc.Find("manifest item").Length(); n != 9 {
		t.Errorf("manifest item count = %d, want 9", n)
	}
	if n := doc.Find("spine itemref").Length(); n != 3 {
		t.Errorf("spine itemref count = %d, want 3", n)
	}
	if n := doc.Find(`meta[property="title-type"]`).Length(); n != 1 {
		t.Errorf("title-type meta count = %d, want 1", n)
	}
	if n := doc.Find(`meta[property="dcterms:modified"]`).Length(); n != 1 {
		t.Errorf("dcterms:modified meta count = %d, want 1", n)
	}
	if n := doc.Find(`item[properties="nav"]`).Length(); n != 1 {
		t.Errorf("nav item count = %d, want 1", n)
	}
}

func TestConvert_DropGuide(t *testing.T) {
	opts := testOptions()
	opts.KeepGuide = false
	res := Convert(fullOPF, Properties{}, nil, opts)

	if strings.Contains(res.OPF, "<guide>") || strings.Contains(res.OPF, "<reference") {
		t.Errorf("guide should be omitted:\n%s", res.OPF)
	}
	if len(res.Guide) != 2 {
		t.Errorf("Guide count = %d, want 2", len(res.Guide))
	}
	if !strings.HasSuffix(res.OPF, "</spine>\n</package>\n") {
		t.Errorf("unexpected output tail:\n%s", res.OPF)
	}
}

func TestConvert_EmptyGuideIsOmitted(t *testing.T) {
	doc := `<package><metadata></metadata><manifest></manifest><spine></spine><guide></guide></package>`
	res := Convert(doc, Properties{}, nil, testOptions())
	if strings.Contains(res.OPF, "guide") {
		t.Errorf("empty guide should be omitted:\n%s", res.OPF)
	}
}

func TestConvert_ModifiedTimestampFormat(t *testing.T) {
	opts := testOptions()
	opts.Now = nil
	res := Convert(minimalOPF, Properties{}, nil, opts)

	re := regexp.MustCompile(`<meta property="dcterms:modified">(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)</meta>`)
	matches := re.FindAllStringSubmatch(res.OPF, -1)
	if len(matches) != 1 {
		t.Fatalf("dcterms:modified count = %d, want 1", len(matches))
	}
	if _, err := time.Parse(time.RFC3339, matches[0][1]); err != nil {
		t.Errorf("modified timestamp %q does not parse: %v", matches[0][1], err)
	}
}

func TestConvert_NoRecognizedDates(t *testing.T) {
	doc := `<package><metadata>
<dc:date>2020</dc:date>
<dc:date opf:event="modification">2021</dc:date>
<dc:date event="original-publication">2022</dc:date>
</metadata></package>`
	res := Convert(doc, Properties{}, nil, testOptions())
	if strings.Contains(res.OPF, "dc:date") {
		t.Errorf("output should contain no dates:\n%s", res.OPF)
	}
}

func TestConvert_SeriesMetadata(t *testing.T) {
	doc := `<package><metadata>
<meta name="calibre:series" content="Foo"/><meta name="calibre:series_index" content="2"/>
</metadata><manifest></manifest><spine></spine></package>`
	res := Convert(doc, Properties{}, nil, testOptions())

	want := `<meta id="series" property="belongs-to-collection">Foo</meta>
<meta refines="#series" property="collection-type">series</meta>
<meta refines="#series" property="group-position">2</meta>
<meta property="dcterms:modified">2024-05-05T22:08:09Z</meta>
</metadata>
`
	if !strings.Contains(res.OPF, want) {
		t.Errorf("series metadata missing; got\n%s", res.OPF)
	}
}

func TestConvert_ManifestAndSpineCounts(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		spine    string
		items    int
		itemrefs int
	}{
		{"empty", "<manifest></manifest>", "<spine></spine>", 0, 0},
		{"self-closing", "<manifest/>", "<spine/>", 0, 0},
		{"two items", `<manifest><item id="a" href="a.xhtml" media-type="application/xhtml+xml"/><item id="b" href="b.xhtml" media-type="application/xhtml+xml"/></manifest>`,
			`<spine><itemref idref="a"/><itemref idref="b"/></spine>`, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "<package><metadata></metadata>" + tt.manifest + tt.spine + "</package>"
			res := Convert(src, Properties{}, []string{"a", "b"}, testOptions())
			if n := strings.Count(res.OPF, "<item "); n != tt.items+1 {
				t.Errorf("item count = %d, want %d\n%s", n, tt.items+1, res.OPF)
			}
			if n := strings.Count(res.OPF, "<itemref "); n != tt.itemrefs+1 {
				t.Errorf("itemref count = %d, want %d\n%s", n, tt.itemrefs+1, res.OPF)
			}
			if n := strings.Count(res.OPF, "</manifest>"); n != 1 {
				t.Errorf("manifest end tag count = %d, want 1", n)
			}
			if n := strings.Count(res.OPF, "</spine>"); n != 1 {
				t.Errorf("spine end tag count = %d, want 1", n)
			}
		})
	}
}

func TestConvert_TruncatedInput(t *testing.T) {
	doc := `<?xml version="1.0"?><package><metadata><dc:title>T</dc:title></metadata><manifest><item id="a" href="a.xhtml" media-type="application/xhtml+xml"/>`
	res := Convert(doc, Properties{}, nil, testOptions())
	for _, s := range []string{"</metadata>", "</manifest>", "</package>"} {
		if n := strings.Count(res.OPF, s); n != 1 {
			t.Errorf("%s count = %d, want 1\n%s", s, n, res.OPF)
		}
	}
	if !strings.HasSuffix(res.OPF, "</package>\n") {
		t.Errorf("output does not end with the package end tag:\n%s", res.OPF)
	}
}

func TestConvert_GuideLessInputClosesPackage(t *testing.T) {
	res := Convert(minimalOPF, Properties{}, nil, testOptions())
	if n := strings.Count(res.OPF, "</package>"); n != 1 {
		t.Errorf("package end tag count = %d, want 1", n)
	}
}

func TestConvert_MalformedMarkupDoesNotStall(t *testing.T) {
	doc := `<package><metadata><dc:title>T</dc:title><dc:subject <broken></metadata><manifest><item id="a"/></manifest><spine><itemref idref="a"/></spine></package>`
	res := Convert(doc, Properties{}, nil, testOptions())
	if !strings.Contains(res.OPF, `<dc:title id="title1">T</dc:title>`) {
		t.Errorf("title missing from output:\n%s", res.OPF)
	}
	if !strings.HasSuffix(res.OPF, "</package>\n") {
		t.Errorf("output does not end with the package end tag:\n%s", res.OPF)
	}
}

func TestConvert_UniqueIdentifierIsReserved(t *testing.T) {
	doc := `<package unique-identifier="navid"><metadata><dc:identifier id="navid">x</dc:identifier></metadata><manifest></manifest><spine></spine></package>`
	res := Convert(doc, Properties{}, nil, testOptions())
	if res.NavID != "xnavid" {
		t.Errorf("NavID = %q, want %q", res.NavID, "xnavid")
	}
	if res.UniqueID != "x" {
		t.Errorf("UniqueID = %q, want %q", res.UniqueID, "x")
	}
}

func TestConvert_DefaultLanguage(t *testing.T) {
	res := Convert(`<package><metadata></metadata></package>`, Properties{}, nil, testOptions())
	if res.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", res.Language, DefaultLanguage)
	}
}

func TestConvert_EmptyLanguageKeepsDefault(t *testing.T) {
	res := Convert(`<package><metadata><dc:language></dc:language></metadata></package>`, Properties{}, nil, testOptions())
	if res.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", res.Language, DefaultLanguage)
	}
}

func TestConvert_KeepEmptyDC(t *testing.T) {
	doc := `<package><metadata><dc:publisher></dc:publisher><dc:rights> </dc:rights><dc:source/></metadata></package>`
	tests := []struct {
		name string
		keep bool
		want []string
		omit []string
	}{
		{
			name: "kept",
			keep: true,
			want: []string{"<dc:publisher></dc:publisher>", "<dc:rights></dc:rights>"},
			omit: []string{"dc:source"},
		},
		{
			name: "dropped",
			keep: false,
			omit: []string{"dc:publisher", "dc:rights", "dc:source"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.KeepEmptyDC = tt.keep
			res := Convert(doc, Properties{}, nil, opts)
			for _, s := range tt.want {
				if !strings.Contains(res.OPF, s) {
					t.Errorf("output missing %q:\n%s", s, res.OPF)
				}
			}
			for _, s := range tt.omit {
				if strings.Contains(res.OPF, s) {
					t.Errorf("output contains %q:\n%s", s, res.OPF)
				}
			}
		})
	}
}

func TestConvert_SpineProgressionFromTag(t *testing.T) {
	doc := `<package><manifest></manifest><spine page-progression-direction="rtl"></spine></package>`
	res := Convert(doc, Properties{}, nil, testOptions())
	if !strings.Contains(res.OPF, `<spine page-progression-direction="rtl">`) {
		t.Errorf("spine progression missing:\n%s", res.OPF)
	}
}
