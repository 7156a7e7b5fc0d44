package epub

import (
	"strings"

	"github.com/yuanying/epub3itizer/internal/opf"
)

// ResolveLandmarks converts guide references to book paths and keeps only
// those pointing at a spine item. Navigation documents may not reference
// resources outside the spine.
func ResolveLandmarks(refs []opf.GuideRef, pkg *Package) (kept []Landmark, dropped []opf.GuideRef) {
	spine := pkg.SpineHrefs()
	for _, ref := range refs {
		p, fragment := splitFragment(ref.Href)
		bookPath := resolveHref(pkg.Dir, p)
		if !spine[bookPath] {
			dropped = append(dropped, ref)
			continue
		}
		href := bookPath
		if fragment != "" {
			href += "#" + fragment
		}
		kept = append(kept, Landmark{Type: ref.Type, Title: ref.Title, Href: href})
	}
	return kept, dropped
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	path, fragment, _ = strings.Cut(src, "#")
	return path, fragment
}
