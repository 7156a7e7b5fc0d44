package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Book gives access to the files of an EPUB container, either zipped or
// unpacked into a directory.
type Book interface {
	// OPFPath returns the book path of the package document.
	OPFPath() string
	// ReadFile reads a file by its book path.
	ReadFile(name string) ([]byte, error)
	Close() error
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

const (
	epubMimetype  = "application/epub+zip"
	containerPath = "META-INF/container.xml"
	opfMediaType  = "application/oebps-package+xml"
)

var (
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
)

// ZipBook reads a zipped EPUB file.
type ZipBook struct {
	zipReader *zip.ReadCloser
	files     map[string]*zip.File
	opfPath   string
}

// Open opens an EPUB file and validates its structure
func Open(path string) (*ZipBook, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}

	b := &ZipBook{
		zipReader: zr,
		files:     make(map[string]*zip.File),
	}
	for _, f := range zr.File {
		b.files[normalizePath(f.Name)] = f
	}

	if err := b.validateMimetype(); err != nil {
		zr.Close()
		return nil, err
	}

	b.opfPath, err = locateOPF(b)
	if err != nil {
		zr.Close()
		return nil, err
	}

	return b, nil
}

// Close closes the underlying zip file.
func (b *ZipBook) Close() error {
	return b.zipReader.Close()
}

// OPFPath returns the path to the OPF file
func (b *ZipBook) OPFPath() string {
	return b.opfPath
}

// ReadFile reads the contents of a file from the EPUB
func (b *ZipBook) ReadFile(name string) ([]byte, error) {
	name = normalizePath(name)
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// validateMimetype checks that the mimetype entry exists, is stored
// uncompressed and has the EPUB media type.
func (b *ZipBook) validateMimetype() error {
	f, ok := b.files["mimetype"]
	if !ok {
		return ErrMimetypeNotFound
	}
	if f.Method != zip.Store {
		return ErrMimetypeCompressed
	}
	return checkMimetype(b)
}

// DirBook reads an EPUB unpacked into a directory, as editors such as
// Sigil keep it.
type DirBook struct {
	root    string
	opfPath string
}

// OpenDir opens an unpacked EPUB directory.
func OpenDir(root string) (*DirBook, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to open EPUB directory: %s is not a directory", root)
	}

	b := &DirBook{root: root}
	if _, err := os.Stat(filepath.Join(root, "mimetype")); err != nil {
		return nil, ErrMimetypeNotFound
	}
	if err := checkMimetype(b); err != nil {
		return nil, err
	}

	b.opfPath, err = locateOPF(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close is a no-op for directories.
func (b *DirBook) Close() error {
	return nil
}

// OPFPath returns the path to the OPF file
func (b *DirBook) OPFPath() string {
	return b.opfPath
}

// ReadFile reads a file below the book root.
func (b *DirBook) ReadFile(name string) ([]byte, error) {
	name = normalizePath(name)
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", name, err)
	}
	return data, nil
}

// OPFDir returns the directory of the package document inside the book.
func OPFDir(b Book) string {
	dir := path.Dir(b.OPFPath())
	if dir == "." {
		return ""
	}
	return dir
}

func checkMimetype(b Book) error {
	content, err := b.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}
	if strings.TrimSpace(string(content)) != epubMimetype {
		return ErrInvalidMimetype
	}
	return nil
}

// locateOPF parses container.xml to extract the OPF path
func locateOPF(b Book) (string, error) {
	content, err := b.ReadFile(containerPath)
	if err != nil {
		return "", ErrContainerNotFound
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.MediaType == opfMediaType || rf.MediaType == "" {
			return normalizePath(rf.FullPath), nil
		}
	}

	// If no media-type match, use the first one
	if len(c.Rootfiles.Rootfile) > 0 {
		return normalizePath(c.Rootfiles.Rootfile[0].FullPath), nil
	}

	return "", ErrOPFPathNotFound
}

// normalizePath normalizes file paths (removes ./ prefix)
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "./")
}
