package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrAlreadyEPUB3 is returned for package documents that need no conversion.
var ErrAlreadyEPUB3 = errors.New("package is already EPUB 3")

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

// opfManifest represents the manifest section
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents an item in the manifest
type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// opfSpine represents the spine section
type opfSpine struct {
	ItemRefs []opfItemRef `xml:"itemref"`
}

// opfItemRef represents an itemref in the spine
type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// ParsePackage reads the manifest and spine of a package document.
// opfDir is the directory containing the OPF file (e.g., "OEBPS").
// Manifest hrefs are resolved against it.
func ParsePackage(content []byte, opfDir string) (*Package, error) {
	content, err := DecodeOPF(content)
	if err != nil {
		return nil, err
	}
	var raw opfPackage
	if err := xml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	pkg := &Package{
		Version:  raw.Version,
		UniqueID: raw.UniqueID,
		Dir:      opfDir,
		Manifest: make(map[string]ManifestItem),
	}

	for _, item := range raw.Manifest.Items {
		pkg.Manifest[item.ID] = ManifestItem{
			ID:        item.ID,
			Href:      resolveHref(opfDir, item.Href),
			MediaType: item.MediaType,
		}
		pkg.ManifestOrder = append(pkg.ManifestOrder, item.ID)
	}

	for _, ref := range raw.Spine.ItemRefs {
		pkg.Spine = append(pkg.Spine, SpineItem{
			IDRef:  ref.IDRef,
			Linear: ref.Linear != "no",
		})
	}

	return pkg, nil
}

// CheckConvertible reports ErrAlreadyEPUB3 for EPUB 3 packages.
func (p *Package) CheckConvertible() error {
	if strings.HasPrefix(strings.TrimSpace(p.Version), "3") {
		return fmt.Errorf("version %s: %w", p.Version, ErrAlreadyEPUB3)
	}
	return nil
}

// IDs returns every manifest id in document order.
func (p *Package) IDs() []string {
	return append([]string(nil), p.ManifestOrder...)
}

// SpineHrefs returns the book paths of the spine items that resolve to
// a manifest item.
func (p *Package) SpineHrefs() map[string]bool {
	hrefs := make(map[string]bool, len(p.Spine))
	for _, ref := range p.Spine {
		if item, ok := p.Manifest[ref.IDRef]; ok {
			hrefs[item.Href] = true
		}
	}
	return hrefs
}

// resolveHref joins a package relative href with the package directory,
// producing an unescaped slash separated book path.
func resolveHref(base, rel string) string {
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	if base == "" || base == "." {
		return path.Clean(rel)
	}
	return path.Join(base, rel)
}
