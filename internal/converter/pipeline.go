package converter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuanying/epub3itizer/internal/config"
	"github.com/yuanying/epub3itizer/internal/epub"
	"github.com/yuanying/epub3itizer/internal/opf"
)

// ErrLandmarkOutsideSpine is returned in strict mode when the guide
// references a resource that is not in the spine.
var ErrLandmarkOutsideSpine = errors.New("guide references a resource outside the spine")

// ConvertOptions holds options for the conversion pipeline.
type ConvertOptions struct {
	// InputPath is an OPF file, an EPUB file or an unpacked EPUB directory.
	InputPath  string
	OutputPath string
	// PropertiesPath optionally names a YAML properties file.
	PropertiesPath string
	KeepGuide      bool
	KeepEmptyDC    bool
	// KeepGuideExplicit and KeepEmptyDCExplicit mark flags the user set.
	// The properties file only overrides the others.
	KeepGuideExplicit   bool
	KeepEmptyDCExplicit bool
	// Strict turns dropped guide landmarks into an error.
	Strict bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Report summarizes a finished conversion.
type Report struct {
	// Language is the dc:language content as written.
	Language string
	// LanguageTag is Language as a BCP 47 tag, "und" when unrecognized.
	LanguageTag string
	UniqueID    string
	NavID       string
	HasHTMLTOC  bool
	// Landmarks are the guide references usable in a navigation document.
	Landmarks []epub.Landmark
	// Dropped are the guide references that point outside the spine.
	Dropped []opf.GuideRef
}

// Pipeline orchestrates the OPF 2 to OPF 3 conversion.
type Pipeline struct {
	Options ConvertOptions
}

// NewPipeline creates a new conversion pipeline.
func NewPipeline(opts ConvertOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{Options: opts}
}

// source is a package document together with what is known about the
// book around it.
type source struct {
	opf []byte
	// pkg is nil when the document could not be read as XML.
	pkg *epub.Package
}

// Convert executes the conversion pipeline.
func (p *Pipeline) Convert() (*Report, error) {
	logger := p.Options.Logger

	src, err := p.readSource()
	if err != nil {
		return nil, err
	}

	var props *config.File
	if p.Options.PropertiesPath != "" {
		props, err = config.Load(p.Options.PropertiesPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded properties", "path", p.Options.PropertiesPath)
	}

	opts := opf.Options{
		KeepGuide:   p.Options.KeepGuide,
		KeepEmptyDC: p.Options.KeepEmptyDC,
		Now:         p.Options.Now,
		Logger:      logger,
	}
	fromFile := opts
	props.Apply(&fromFile)
	if !p.Options.KeepGuideExplicit {
		opts.KeepGuide = fromFile.KeepGuide
	}
	if !p.Options.KeepEmptyDCExplicit {
		opts.KeepEmptyDC = fromFile.KeepEmptyDC
	}

	seeds := p.seedIDs(src, props)
	logger.Debug("seeded ids", "count", len(seeds))

	res := opf.Convert(string(src.opf), props.Properties(), seeds, opts)

	report := &Report{
		Language:    res.Language,
		LanguageTag: languageTag(res.Language, logger).String(),
		UniqueID:    res.UniqueID,
		NavID:       res.NavID,
		HasHTMLTOC:  res.HasHTMLTOC,
	}
	if src.pkg != nil {
		report.Landmarks, report.Dropped = epub.ResolveLandmarks(res.Guide, src.pkg)
	} else {
		for _, ref := range res.Guide {
			report.Landmarks = append(report.Landmarks, epub.Landmark(ref))
		}
	}
	for _, ref := range report.Dropped {
		logger.Info("guide reference is not a spine item, not adding it to the landmarks", "href", ref.Href)
	}
	if p.Options.Strict && len(report.Dropped) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrLandmarkOutsideSpine, report.Dropped[0].Href)
	}

	if err := os.WriteFile(p.Options.OutputPath, []byte(res.OPF), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write OPF: %w", err)
	}
	return report, nil
}

// readSource loads the package document from the input path.
func (p *Pipeline) readSource() (*source, error) {
	in := p.Options.InputPath
	info, err := os.Stat(in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	var src *source
	switch {
	case info.IsDir():
		book, err := epub.OpenDir(in)
		if err != nil {
			return nil, err
		}
		src, err = readBook(book)
		if err != nil {
			return nil, err
		}
	case strings.EqualFold(filepath.Ext(in), ".epub"):
		book, err := epub.Open(in)
		if err != nil {
			return nil, err
		}
		src, err = readBook(book)
		if err != nil {
			return nil, err
		}
	default:
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read OPF: %w", err)
		}
		data, err = epub.DecodeOPF(data)
		if err != nil {
			return nil, err
		}
		src = &source{opf: data}
		src.pkg = p.parsePackage(data, "")
	}

	if src.pkg != nil {
		if err := src.pkg.CheckConvertible(); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func readBook(book epub.Book) (*source, error) {
	defer book.Close()

	data, err := book.ReadFile(book.OPFPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read OPF: %w", err)
	}
	data, err = epub.DecodeOPF(data)
	if err != nil {
		return nil, err
	}
	pkg, err := epub.ParsePackage(data, epub.OPFDir(book))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OPF: %w", err)
	}
	return &source{opf: data, pkg: pkg}, nil
}

// parsePackage reads manifest ids of a standalone OPF file. The converter
// itself tolerates malformed markup, so a parse failure only costs the id
// seeds and landmark filtering.
func (p *Pipeline) parsePackage(data []byte, dir string) *epub.Package {
	pkg, err := epub.ParsePackage(data, dir)
	if err != nil {
		p.Options.Logger.Warn("failed to parse OPF, continuing without manifest ids", "error", err)
		return nil
	}
	return pkg
}

// seedIDs lists ids that new metadata ids must not collide with.
func (p *Pipeline) seedIDs(src *source, props *config.File) []string {
	var ids []string
	if src.pkg != nil {
		ids = append(ids, src.pkg.IDs()...)
	}
	if props != nil {
		ids = append(ids, props.IDs...)
	}
	return ids
}
