package spool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Entry is one file or directory in a listing. Path is relative to the
// spool root, slash separated, and ends in "/" for directories.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func newEntry(name string, info os.FileInfo) Entry {
	rel := strings.TrimPrefix(name, "/")
	label := info.Name()
	if info.IsDir() && rel != "" {
		rel += "/"
		label += "/"
	}
	return Entry{
		Name:    label,
		Path:    rel,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// Lister enumerates spool directories.
type Lister struct {
	fs    afero.Fs
	guard rootGuard
}

// NewLister returns a Lister over fsys, whose root "/" is the spool
// directory.
func NewLister(fsys afero.Fs) *Lister {
	return &Lister{fs: fsys}
}

// List returns the immediate entries of dir ("" for the spool root),
// sorted by name. Sub-directories are listed but not descended into.
//
// Entries that cannot be stat'ed, for example because they were removed
// while the listing ran, are skipped, as are symlinks that lead out of the
// spool. A concurrent Create may or may not be
// visible.
func (l *Lister) List(dir string) ([]Entry, error) {
	name, err := cleanRelative(dir)
	if err != nil {
		return nil, err
	}
	root := name == "/"
	if err := l.guard.check(name); err != nil {
		return nil, err
	}

	d, err := l.fs.Open(name)
	if err != nil {
		return nil, listError(root, err)
	}
	defer d.Close()

	info, err := d.Stat()
	if err != nil {
		return nil, listError(root, err)
	}
	if !info.IsDir() {
		if root {
			return nil, fmt.Errorf("%w: spool root is not a directory", ErrDirectoryUnavailable)
		}
		return nil, ErrNotFound
	}

	names, err := d.Readdirnames(-1)
	if err != nil {
		return nil, listError(root, err)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		full := path.Join(name, n)
		if l.guard.check(full) != nil {
			continue
		}
		fi, err := l.fs.Stat(full)
		if err != nil {
			continue
		}
		entries = append(entries, newEntry(full, fi))
	}
	return entries, nil
}

func listError(root bool, err error) error {
	if root {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrReadFailure, err)
}
