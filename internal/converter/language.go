package converter

import (
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageTag interprets a dc:language value as a BCP 47 tag. Values that
// do not parse are matched against English language names, so "Japanese"
// becomes "ja".
func languageTag(in string, logger *slog.Logger) language.Tag {
	lang := strings.TrimSpace(in)
	if lang == "" {
		return language.Und
	}

	tag, err := language.Parse(lang)
	if err == nil {
		return tag
	}

	names := display.English.Tags()
	for _, supported := range display.Supported.Tags() {
		if strings.EqualFold(names.Name(supported), lang) {
			return supported
		}
	}
	logger.Warn("dc:language is not a BCP 47 tag", "language", lang)
	return language.Und
}
