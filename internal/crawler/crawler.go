package crawler

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInputNotFound is returned when the input directory or archive does not exist.
var ErrInputNotFound = errors.New("input not found")

// Entry is one disassembled file: its slash-separated path relative to the
// input root and its raw text.
type Entry struct {
	Path    string
	Content string
}

// Crawler enumerates disassembly output from a directory tree or a zip archive.
type Crawler struct {
	ignored []string
	suffix  string
}

// NewCrawler creates a new crawler instance.
func NewCrawler() *Crawler {
	return &Crawler{
		ignored: []string{".git", "original", "build"},
		suffix:  ".smali",
	}
}

// ScanProject walks root and streams every .smali entry to onEntry. root may
// be a directory or a .zip archive. Entries are delivered in lexical path
// order so that loading is reproducible.
func (c *Crawler) ScanProject(root string, onEntry func(Entry) error) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, root)
		}
		return fmt.Errorf("failed to stat input: %w", err)
	}

	if info.IsDir() {
		return c.scanDir(root, onEntry)
	}
	return c.scanZip(root, onEntry)
}

// Collect returns every entry of root, sorted by path.
func (c *Crawler) Collect(root string) ([]Entry, error) {
	var entries []Entry
	err := c.ScanProject(root, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Wants reports whether a slash-separated relative path is a .smali file
// outside the ignored top-level directories. A package that happens to be
// named like an ignored directory is kept.
func (c *Crawler) Wants(rel string) bool {
	if !strings.HasSuffix(rel, c.suffix) {
		return false
	}
	top, _, nested := strings.Cut(rel, "/")
	return !nested || !c.isIgnored(top)
}

func (c *Crawler) isIgnored(dir string) bool {
	for _, ign := range c.ignored {
		if dir == ign {
			return true
		}
	}
	return false
}

func (c *Crawler) scanDir(root string, onEntry func(Entry) error) error {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip ignored directories directly under root
		if d.IsDir() {
			if path != root && filepath.Dir(path) == filepath.Clean(root) && c.isIgnored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasSuffix(d.Name(), c.suffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		if err := onEntry(Entry{Path: filepath.ToSlash(rel), Content: string(data)}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) scanZip(root string, onEntry func(Entry) error) error {
	zr, err := zip.OpenReader(root)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", root, err)
	}
	defer zr.Close()

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && c.Wants(strings.TrimPrefix(f.Name, "./")) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	for _, f := range files {
		content, err := readZipFile(f)
		if err != nil {
			return fmt.Errorf("failed to read %s from archive: %w", f.Name, err)
		}
		if err := onEntry(Entry{Path: strings.TrimPrefix(f.Name, "./"), Content: content}); err != nil {
			return err
		}
	}
	return nil
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
