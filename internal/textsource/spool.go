package textsource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cvmatcher/internal/errors"
)

// Spool is a per-request scratch directory for uploaded bytes. Every file
// written to it is released by the caller; Close removes whatever remains.
type Spool struct {
	dir string
}

// NewSpool creates a fresh scratch directory below root.
func NewSpool(root string) (*Spool, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, errors.NewIOError("SPOOL_CREATE_FAILED", fmt.Sprintf("cannot create upload directory %s", root), err)
	}
	dir, err := os.MkdirTemp(root, spoolPrefix+"*")
	if err != nil {
		return nil, errors.NewIOError("SPOOL_CREATE_FAILED", "cannot create request scratch directory", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Spool) Dir() string { return s.dir }

// Write stores data under a unique name derived from the upload name and
// returns its path together with a release func that deletes it.
func (s *Spool) Write(name string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp(s.dir, "*-"+safeName(name))
	if err != nil {
		return "", func() {}, errors.NewIOError("FILE_WRITE_FAILED", "cannot spool upload", err)
	}
	path := f.Name()
	release := func() { _ = os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		release()
		return "", func() {}, errors.NewIOError("FILE_WRITE_FAILED", "cannot spool upload", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", func() {}, errors.NewIOError("FILE_WRITE_FAILED", "cannot spool upload", err)
	}
	return path, release, nil
}

// Close removes the scratch directory and anything left in it.
func (s *Spool) Close() error {
	return os.RemoveAll(s.dir)
}

// spoolPrefix names request scratch directories so Sweep never touches
// anything else under root.
const spoolPrefix = "upload-"

// Sweep deletes every request scratch directory under root. It only
// catches leftovers from a crashed process; normal requests clean up after
// themselves.
func Sweep(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), spoolPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// safeName keeps only the base name of an upload and strips characters
// that are awkward in file names. The extension is preserved.
func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '?', ':', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, base)
}
