package opf

import (
	"fmt"
	"strings"
)

const (
	xmlDeclaration    = `<?xml version="1.0" encoding="utf-8" standalone="no"?>` + "\n"
	packageVersion    = "3.0"
	renditionVocab    = "rendition: http://www.idpf.org/vocab/rendition/#"
	modifiedLayout    = "2006-01-02T15:04:05Z"
	navHref           = "nav.xhtml"
	navMediaType      = "application/xhtml+xml"
	ncxMediaType      = "application/x-dtbncx+xml"
	modernFontType    = "application/vnd.ms-opentype"
	activeClass       = "-epub-media-overlay-active"
	playbackClass     = "-epub-media-overlay-playback-active"
	seriesMeta        = "calibre:series"
	seriesIndexMeta   = "calibre:series_index"
	titleSortMeta     = "calibre:title_sort"
	coverMeta         = "cover"
	progressionMeta   = "page-progression-direction"
	navIDCandidate    = "navid"
	seriesIDCandidate = "series"
)

// metadataNamespaces are declared on the OPF 3 metadata element.
var metadataNamespaces = [][2]string{
	{"xmlns:dc", "http://purl.org/dc/elements/1.1/"},
	{"xmlns:opf", "http://www.idpf.org/2007/opf"},
	{"xmlns:dcterms", "http://purl.org/dc/terms/"},
}

// legacyFontTypes are font media types that OPF 3 readers reject.
var legacyFontTypes = map[string]bool{
	"application/x-font-ttf":      true,
	"application/x-font-opentype": true,
}

// pageMapTypes identify an Adobe page-map document.
var pageMapTypes = map[string]bool{
	"application/oebps-page-map+xml": true,
	"application/oebs-page-map+xml":  true,
}

// phaseResult tells the engine whether a phase handled the event.
type phaseResult int

const (
	next phaseResult = iota // try the following phase with the same event
	consumed
)

type phase func(ev TagEvent) phaseResult

// region flags of the package being written.
type regions struct {
	pkg      bool
	metadata bool
	manifest bool
	spine    bool
	guide    bool
}

type converter struct {
	*state
	open   regions
	phases []phase
}

// Convert rewrites an OPF 2.0 package document as OPF 3.0.
//
// props carries properties collected from the content documents and media
// overlays of the book; seedIDs lists ids already used anywhere in the
// book so that newly created ids do not collide with them.
func Convert(doc string, props Properties, seedIDs []string, opts Options) *Result {
	c := &converter{state: newState(props, seedIDs, opts)}
	c.phases = []phase{
		c.xmlDecl,
		c.packageBegin,
		c.metadataBegin,
		c.metadataMeta,
		c.metadataDC,
		c.closeMetadata,
		c.manifestBegin,
		c.manifestItem,
		c.closeManifest,
		c.spineBegin,
		c.spineItemref,
		c.closeSpine,
		c.guideBegin,
		c.guideReference,
		c.closeGuide,
	}

	events := NewEventStream(doc)
	for {
		ev, ok := events.Next()
		if !ok {
			break
		}
		c.step(ev)
	}
	c.finish()
	return c.result()
}

// step runs one event through the phases until one consumes it.
func (c *converter) step(ev TagEvent) {
	for _, p := range c.phases {
		if p(ev) == consumed {
			return
		}
	}
}

// finish closes whatever the input left open.
func (c *converter) finish() {
	if c.open.metadata {
		c.endMetadata()
	}
	if c.open.manifest {
		c.endManifest()
	}
	if c.open.spine {
		c.endSpine()
	}
	if c.open.guide {
		c.endGuide()
	}
	if c.open.pkg {
		c.endPackage()
	}
}

func isBegin(ev TagEvent, name string) bool {
	return !ev.Closing && ev.Name == name
}

func (c *converter) xmlDecl(ev TagEvent) phaseResult {
	if ev.Name != xmlDeclName {
		return next
	}
	if !ev.Closing {
		c.emit(xmlDeclaration)
	}
	return consumed
}

func (c *converter) packageBegin(ev TagEvent) phaseResult {
	if !isBegin(ev, "package") {
		return next
	}
	attrs := ev.Attrs.Clone()
	attrs.Set("version", packageVersion)
	attrs.Set("prefix", renditionVocab)
	if ref, ok := attrs.Get("unique-identifier"); ok && ref != "" {
		c.uniqueIDRef = ref
		c.ids.Reserve(ref)
	}
	c.emit(startTag("package", attrs))
	c.open.pkg = true
	return consumed
}

func (c *converter) metadataBegin(ev TagEvent) phaseResult {
	if !isBegin(ev, "metadata") {
		return next
	}
	attrs := ev.Attrs.Clone()
	for _, ns := range metadataNamespaces {
		attrs.Set(ns[0], ns[1])
	}
	c.emit(startTag("metadata", attrs))
	c.open.metadata = true
	return consumed
}

func (c *converter) metadataMeta(ev TagEvent) phaseResult {
	if !isBegin(ev, "meta") || !ev.Within("metadata") {
		return next
	}
	content, hasContent := ev.Attrs.Get("content")

	switch ev.Attrs.Value("name") {
	case seriesMeta:
		if hasContent {
			c.series = &content
		}
		return consumed
	case seriesIndexMeta:
		if hasContent {
			c.seriesIndex = &content
		}
		return consumed
	case titleSortMeta:
		if hasContent {
			if c.titleID == "" {
				c.titleID = c.ids.Allocate("title1")
			}
			c.emit(textElement("meta", AttrsOf("refines", "#"+c.titleID, "property", "file-as"), content).String())
		}
		return consumed
	case coverMeta:
		c.coverID = content
	case progressionMeta:
		c.ppd = content
	}

	c.emitElements(mapRenditionMeta(ev.Attrs))
	return consumed
}

func (c *converter) metadataDC(ev TagEvent) phaseResult {
	if ev.Closing || !ev.Within("metadata") || !strings.HasPrefix(ev.Name, "dc:") {
		return next
	}
	if ev.Name == "dc:language" && ev.Content != nil && *ev.Content != "" {
		c.lang = *ev.Content
	}
	c.emitElements(c.mapDublinCore(ev.Name, ev.Attrs, ev.Content))
	return consumed
}

func (c *converter) closeMetadata(ev TagEvent) phaseResult {
	if c.open.metadata && !ev.Within("metadata") {
		c.endMetadata()
	}
	return next
}

func (c *converter) endMetadata() {
	if c.series != nil {
		id := c.ids.Allocate(seriesIDCandidate)
		c.emit(textElement("meta", AttrsOf("id", id, "property", "belongs-to-collection"), *c.series).String())
		c.emit(textElement("meta", AttrsOf("refines", "#"+id, "property", "collection-type"), "series").String())
		if c.seriesIndex != nil {
			c.emit(textElement("meta", AttrsOf("refines", "#"+id, "property", "group-position"), *c.seriesIndex).String())
		}
	}

	modified := c.opts.Now().UTC().Format(modifiedLayout)
	c.emit(textElement("meta", AttrsOf("property", "dcterms:modified"), modified).String())

	if len(c.overlayIDs) > 0 {
		c.emitOverlayMetadata()
	}

	c.emit(endTag("metadata"))
	c.open.metadata = false
}

func (c *converter) emitOverlayMetadata() {
	var total float64
	for _, moID := range c.overlayIDs {
		d := c.props.Overlays[moID].Duration
		total += d
		c.emit(textElement("meta", AttrsOf("property", "media:duration", "refines", "#"+moID), formatSeconds(d)).String())
	}
	c.emit(textElement("meta", AttrsOf("property", "media:duration"), formatSeconds(total)).String())

	c.emit(textElement("meta", AttrsOf("property", "media:active-class"), activeClass).String())
	c.opts.Logger.Info("adding media overlay metadata", "property", "media:active-class", "value", activeClass)
	c.emit(textElement("meta", AttrsOf("property", "media:playback-active-class"), playbackClass).String())
	c.opts.Logger.Info("adding media overlay metadata", "property", "media:playback-active-class", "value", playbackClass)
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

func (c *converter) manifestBegin(ev TagEvent) phaseResult {
	if !isBegin(ev, "manifest") {
		return next
	}
	c.emit(startTag("manifest", nil))
	c.open.manifest = true
	return consumed
}

func (c *converter) manifestItem(ev TagEvent) phaseResult {
	if !isBegin(ev, "item") || !ev.DirectlyIn("manifest") {
		return next
	}
	attrs := ev.Attrs.Clone()
	id := attrs.Value("id")
	c.ids.Reserve(id)

	mediaType := attrs.Value("media-type")
	if legacyFontTypes[mediaType] {
		mediaType = modernFontType
		attrs.Set("media-type", mediaType)
	}
	switch {
	case mediaType == ncxMediaType:
		c.ncxID = id
	case pageMapTypes[mediaType]:
		c.pageMapID = id
	}

	if props, ok := c.props.Manifest[id]; ok {
		attrs.Set("properties", props)
	}
	if c.coverID != "" && id == c.coverID {
		appendToken(attrs, "properties", "cover-image")
	}
	if moID, ok := c.overlayFor(id); ok {
		attrs.Set("media-overlay", moID)
	}

	c.emit(Element{Name: "item", Attrs: attrs}.String())
	return consumed
}

func (c *converter) closeManifest(ev TagEvent) phaseResult {
	if c.open.manifest && !ev.Within("manifest") {
		c.endManifest()
	}
	return next
}

func (c *converter) endManifest() {
	c.navID = c.ids.Allocate(navIDCandidate)
	nav := AttrsOf("id", c.navID, "media-type", navMediaType, "href", navHref, "properties", "nav")
	c.emit(Element{Name: "item", Attrs: nav}.String())
	c.emit(endTag("manifest"))
	c.open.manifest = false
}

func (c *converter) spineBegin(ev TagEvent) phaseResult {
	if !isBegin(ev, "spine") {
		return next
	}
	if c.ppd == "" {
		c.ppd = ev.Attrs.Value("page-progression-direction")
	}
	attrs := NewAttrs()
	if c.ppd != "" {
		attrs.Set("page-progression-direction", c.ppd)
	}
	if c.ncxID != "" {
		attrs.Set("toc", c.ncxID)
	}
	if c.pageMapID != "" {
		attrs.Set("page-map", c.pageMapID)
	}
	c.emit(startTag("spine", attrs))
	c.open.spine = true
	return consumed
}

func (c *converter) spineItemref(ev TagEvent) phaseResult {
	if !isBegin(ev, "itemref") || !ev.DirectlyIn("spine") {
		return next
	}
	attrs := ev.Attrs.Clone()
	if props, ok := c.props.Spine[attrs.Value("idref")]; ok && props != "" {
		appendToken(attrs, "properties", props)
	}
	c.emit(Element{Name: "itemref", Attrs: attrs}.String())
	return consumed
}

func (c *converter) closeSpine(ev TagEvent) phaseResult {
	if c.open.spine && !ev.Within("spine") {
		c.endSpine()
	}
	return next
}

// endSpine appends the navigation document without a linear attribute.
func (c *converter) endSpine() {
	c.emit(Element{Name: "itemref", Attrs: AttrsOf("idref", c.navID)}.String())
	c.emit(endTag("spine"))
	c.open.spine = false
}

func (c *converter) guideBegin(ev TagEvent) phaseResult {
	if !isBegin(ev, "guide") {
		return next
	}
	c.guideOut.Reset()
	c.guideOut.WriteString(startTag("guide", nil))
	c.open.guide = true
	return consumed
}

func (c *converter) guideReference(ev TagEvent) phaseResult {
	if !isBegin(ev, "reference") || !ev.DirectlyIn("guide") {
		return next
	}
	ref := GuideRef{
		Type:  ev.Attrs.Value("type"),
		Title: ev.Attrs.Value("title"),
		Href:  ev.Attrs.Value("href"),
	}
	if ref.Type == "toc" {
		c.hasHTMLTOC = true
	}
	c.guide = append(c.guide, ref)
	c.guideOut.WriteString(Element{Name: "reference", Attrs: ev.Attrs.Clone()}.String())
	return consumed
}

// closeGuide also ends the package: tours, the only region that may
// follow the guide, has no OPF 3 counterpart.
func (c *converter) closeGuide(ev TagEvent) phaseResult {
	if c.open.guide && !ev.Within("guide") {
		c.endGuide()
		if c.open.pkg {
			c.endPackage()
		}
	}
	return next
}

func (c *converter) endGuide() {
	c.guideOut.WriteString(endTag("guide"))
	if c.opts.KeepGuide && len(c.guide) > 0 {
		c.emit(c.guideOut.String())
	}
	c.guideOut.Reset()
	c.open.guide = false
}

func (c *converter) endPackage() {
	c.emit(endTag("package"))
	c.open.pkg = false
}

// appendToken adds a space separated token list to an attribute.
func appendToken(attrs *Attrs, key, tokens string) {
	if cur, ok := attrs.Get(key); ok && cur != "" {
		attrs.Set(key, cur+" "+tokens)
		return
	}
	attrs.Set(key, tokens)
}
