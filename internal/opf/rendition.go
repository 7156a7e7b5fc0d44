package opf

import "strings"

const renditionPrefix = "rendition:"

// mapRenditionMeta converts an OPF 2 name/content meta into its OPF 3
// rendition property where one exists. Other metas pass through.
func mapRenditionMeta(attrs *Attrs) []Element {
	attrs = attrs.Clone()
	attrs.Delete("id")

	name := strings.TrimPrefix(attrs.Value("name"), renditionPrefix)
	content := attrs.Value("content")

	switch name {
	case "orientation", "layout", "spread":
		return []Element{renditionMeta(name, content)}
	case "fixed-layout":
		layout := "reflowable"
		if strings.ToLower(content) == "true" {
			layout = "pre-paginated"
		}
		return []Element{renditionMeta("layout", layout)}
	case "orientation-lock":
		orientation := strings.ToLower(content)
		if orientation != "portrait" && orientation != "landscape" {
			orientation = "auto"
		}
		return []Element{renditionMeta("orientation", orientation)}
	}
	return []Element{{Name: "meta", Attrs: attrs}}
}

func renditionMeta(property, value string) Element {
	return textElement("meta", AttrsOf("property", renditionPrefix+property), value)
}
