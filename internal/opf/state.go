package opf

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

// DefaultLanguage is reported when the document has no dc:language.
const DefaultLanguage = "en"

// Options controls behaviors that differ between converter variants.
type Options struct {
	// KeepGuide retains the legacy <guide> element in the output.
	// Guide references are collected either way.
	KeepGuide bool
	// KeepEmptyDC emits Dublin Core elements whose text is empty.
	// Elements without any text node are always dropped.
	KeepEmptyDC bool
	// Now stamps dcterms:modified. Defaults to time.Now.
	Now func() time.Time
	// Logger receives informational notes. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{KeepGuide: true}
}

// MediaOverlay describes one SMIL document of the book.
type MediaOverlay struct {
	// Duration is the total clip duration in seconds.
	Duration float64
	// TextIDs are the manifest ids of the content documents it narrates.
	TextIDs []string
}

// Properties carries data collected from the rest of the book.
type Properties struct {
	Manifest map[string]string // manifest id -> space separated tokens
	Spine    map[string]string // itemref idref -> space separated tokens
	Overlays map[string]MediaOverlay
}

// GuideRef is one reference of the legacy guide.
// Href is relative to the package document.
type GuideRef struct {
	Type  string
	Title string
	Href  string
}

// Result is the outcome of a conversion.
type Result struct {
	OPF      string
	Language string
	// UniqueID is the value of the identifier named by unique-identifier.
	UniqueID string
	Guide    []GuideRef
	// HasHTMLTOC is set when the guide references an HTML table of contents.
	HasHTMLTOC bool
	// NavID is the manifest id allocated for the navigation document.
	NavID string
}

// state is the mutable data of one conversion.
type state struct {
	opts  Options
	props Properties
	ids   *IDRegistry
	out   strings.Builder

	lang        string
	uniqueIDRef string
	uid         string

	titleCount       int
	creatorCount     int
	contributorCount int
	titleID          string
	dateEmitted      bool

	series      *string
	seriesIndex *string
	coverID     string
	ppd         string

	ncxID     string
	pageMapID string
	navID     string

	guide      []GuideRef
	guideOut   strings.Builder
	hasHTMLTOC bool

	overlayIDs []string
}

func newState(props Properties, seedIDs []string, opts Options) *state {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	st := &state{
		opts:  opts,
		props: props,
		ids:   NewIDRegistry(seedIDs...),
		lang:  DefaultLanguage,
	}
	for id := range props.Overlays {
		st.overlayIDs = append(st.overlayIDs, id)
	}
	sort.Strings(st.overlayIDs)
	return st
}

func (st *state) emit(s string) {
	st.out.WriteString(s)
}

func (st *state) emitElements(elems []Element) {
	for _, e := range elems {
		st.out.WriteString(e.String())
	}
}

// overlayFor returns the media overlay narrating the given manifest id.
func (st *state) overlayFor(manifestID string) (string, bool) {
	for _, moID := range st.overlayIDs {
		for _, textID := range st.props.Overlays[moID].TextIDs {
			if textID == manifestID {
				return moID, true
			}
		}
	}
	return "", false
}

func (st *state) result() *Result {
	return &Result{
		OPF:        st.out.String(),
		Language:   st.lang,
		UniqueID:   st.uid,
		Guide:      st.guide,
		HasHTMLTOC: st.hasHTMLTOC,
		NavID:      st.navID,
	}
}
