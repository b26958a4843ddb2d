// Package wordlist loads and stores the per-CMS plugin and theme name lists
// used by enumeration, and decides when they are due for a refresh.
package wordlist

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
)

// Kind names a wordlist.
type Kind string

const (
	KindPlugins Kind = "plugins"
	KindThemes  Kind = "themes"
)

// ErrNotFound is returned when a CMS has no wordlist of the requested kind.
var ErrNotFound = errors.New("wordlist: not found")

// Wordlist is a loaded list of names.
type Wordlist struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Kind     Kind      `json:"kind"`
	Words    []string  `json:"words,omitempty"`
	Size     int       `json:"size"`
	Modified time.Time `json:"modified"`
}

// Limit returns at most n words. n <= 0 returns every word.
func (wl *Wordlist) Limit(n int) []string {
	if n <= 0 || n >= len(wl.Words) {
		return wl.Words
	}
	return wl.Words[:n]
}

// IsStale reports whether the list is older than maxAge at now.
func (wl *Wordlist) IsStale(maxAge time.Duration, now time.Time) bool {
	return wl.Modified.IsZero() || now.Sub(wl.Modified) > maxAge
}

// FileName is the on-disk file name of a kind.
func FileName(kind Kind) string {
	if kind == KindThemes {
		return defaults.ThemesFile
	}
	return defaults.PluginsFile
}

// Path is <dataDir>/<cms>/<kind>.txt.
func Path(dataDir, cms string, kind Kind) string {
	return filepath.Join(dataDir, cms, FileName(kind))
}

// Load reads the wordlist of kind for cms. A gzipped sibling (.txt.gz) is
// read when the plain file is absent.
func Load(dataDir, cms string, kind Kind) (*Wordlist, error) {
	path := Path(dataDir, cms, kind)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, gzErr := os.Stat(path + ".gz"); gzErr == nil {
			path += ".gz"
		}
	}

	wl, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, cms, kind)
	}
	if err != nil {
		return nil, err
	}
	wl.Name = cms
	wl.Kind = kind
	return wl, nil
}

// LoadFile reads one word per line from path, skipping blanks and # comments.
func LoadFile(path string) (*Wordlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wordlist: open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("wordlist: stat %s: %w", path, err)
	}

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("wordlist: gzip %s: %w", path, err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	words, err := readLines(reader)
	if err != nil {
		return nil, fmt.Errorf("wordlist: read %s: %w", path, err)
	}

	return &Wordlist{
		Name:     filepath.Base(path),
		Path:     path,
		Words:    words,
		Size:     len(words),
		Modified: info.ModTime(),
	}, nil
}

func readLines(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)

	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			words = append(words, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Deduplicate(words), nil
}

// Save writes words, deduplicated, to the kind's file for cms. The file is
// replaced atomically.
func Save(dataDir, cms string, kind Kind, words []string) (string, error) {
	path := Path(dataDir, cms, kind)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("wordlist: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+FileName(kind)+".*")
	if err != nil {
		return "", fmt.Errorf("wordlist: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, word := range Deduplicate(words) {
		if _, err := w.WriteString(word + "\n"); err != nil {
			tmp.Close()
			return "", fmt.Errorf("wordlist: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("wordlist: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("wordlist: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("wordlist: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("wordlist: rename: %w", err)
	}
	return path, nil
}

// IsStale reports whether the kind's file for cms is missing or older than
// maxAge.
func IsStale(dataDir, cms string, kind Kind, maxAge time.Duration, now time.Time) bool {
	info, err := os.Stat(Path(dataDir, cms, kind))
	if err != nil {
		return true
	}
	return now.Sub(info.ModTime()) > maxAge
}

// Deduplicate drops repeated and empty words, keeping first occurrences in
// order.
func Deduplicate(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
