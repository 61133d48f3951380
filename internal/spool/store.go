// Package spool implements the on-disk mail spool: a flat directory in which
// every received payload is stored once, under a freshly generated
// identifier, and never overwritten.
//
// Writes use exclusive-create (O_CREATE|O_EXCL). That single filesystem
// primitive is what keeps concurrent writers from clobbering each other, so
// the store holds no locks. Reads and listings are plain filesystem calls
// and see whatever is on disk at that moment.
package spool

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

// Defaults applied by Config when a field is left zero.
const (
	DefaultExtension   = ".json"
	DefaultContentType = "application/json"
	DefaultMaxAttempts = 3
	DefaultFileMode    = fs.FileMode(0o640)
)

// Config describes a spool directory. It is copied into the Store at
// construction and never changed afterwards.
type Config struct {
	// Dir is the spool root on the local filesystem.
	Dir string
	// Extension is appended to every identifier to form the file name.
	Extension string
	// ContentType is the declared type of every stored payload.
	ContentType string
	// MaxAttempts bounds how many fresh identifiers Create tries when the
	// chosen name already exists.
	MaxAttempts int
	// FileMode is the permission used for new files.
	FileMode fs.FileMode
}

func (c Config) withDefaults() Config {
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.ContentType == "" {
		c.ContentType = DefaultContentType
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.FileMode == 0 {
		c.FileMode = DefaultFileMode
	}
	return c
}

// Option customises a Store.
type Option func(*Store)

// WithGenerator replaces the identifier generator (UUIDGenerator by default).
func WithGenerator(g Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.gen = g
		}
	}
}

// Store creates and reads spool items.
type Store struct {
	fs    afero.Fs
	cfg   Config
	gen   Generator
	guard rootGuard
}

// New returns a Store on the local filesystem rooted at cfg.Dir. It does
// not touch the disk; call Check to verify the directory is usable.
// Symlinks inside the spool are followed only while their target stays
// under cfg.Dir.
func New(cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("%w: empty spool directory", ErrDirectoryUnavailable)
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	cfg.Dir = dir
	s := NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), cfg, opts...)
	s.guard = rootGuard{dir: dir}
	return s, nil
}

// NewWithFs returns a Store over fsys, whose root "/" is the spool
// directory. cfg.Dir is informational only.
func NewWithFs(fsys afero.Fs, cfg Config, opts ...Option) *Store {
	s := &Store{
		fs:  fsys,
		cfg: cfg.withDefaults(),
		gen: UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// ContentType is the declared type of every stored item.
func (s *Store) ContentType() string { return s.cfg.ContentType }

// FileName returns the file name used for id.
func (s *Store) FileName(id Identifier) string { return string(id) + s.cfg.Extension }

// Lister returns a Lister sharing the store's filesystem.
func (s *Store) Lister() *Lister { return &Lister{fs: s.fs, guard: s.guard} }

// Create stores payload under a new identifier and returns it.
//
// The file is opened with exclusive-create, so an existing file is never
// truncated or appended to. On a name collision a fresh identifier is tried,
// up to MaxAttempts times. If writing fails part way, the file is removed
// before the error is returned.
func (s *Store) Create(payload []byte) (Identifier, error) {
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		id := s.gen.NewIdentifier()
		if !validIdentifier(id) {
			return "", fmt.Errorf("%w: invalid identifier %q", ErrWriteFailure, id)
		}

		name := "/" + s.FileName(id)
		f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.cfg.FileMode)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrExist):
				continue
			case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOTDIR):
				return "", fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
			default:
				return "", fmt.Errorf("%w: %w", ErrWriteFailure, err)
			}
		}

		if err := s.writeAndClose(f, name, payload); err != nil {
			return "", err
		}
		return id, nil
	}
	return "", ErrCollisionExhausted
}

func (s *Store) writeAndClose(f afero.File, name string, payload []byte) error {
	n, err := f.Write(payload)
	if err == nil && n < len(payload) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return nil
}

// Read returns the bytes stored at relativePath, verbatim.
//
// relativePath is resolved against the spool root. Absolute paths, any
// ".." segment (including percent-encoded ones) and symlinks leading out of
// the spool are rejected with ErrTraversalRejected.
func (s *Store) Read(relativePath string) ([]byte, error) {
	name, err := s.resolve(relativePath)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(name)
	if err != nil {
		return nil, lookupError(err)
	}
	if info.IsDir() {
		return nil, ErrIsDirectory
	}

	b, err := afero.ReadFile(s.fs, name)
	if err != nil {
		return nil, lookupError(err)
	}
	return b, nil
}

// Stat describes the entry at relativePath with the same path rules as Read.
func (s *Store) Stat(relativePath string) (Entry, error) {
	name, err := s.resolve(relativePath)
	if err != nil {
		return Entry{}, err
	}
	info, err := s.fs.Stat(name)
	if err != nil {
		return Entry{}, lookupError(err)
	}
	return newEntry(name, info), nil
}

// Check verifies that the spool root exists, is a directory and accepts new
// files. It leaves nothing behind.
func (s *Store) Check() error {
	info, err := s.fs.Stat("/")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDirectoryUnavailable, s.cfg.Dir)
	}

	probe := "/.probe-" + string(s.gen.NewIdentifier())
	f, err := s.fs.OpenFile(probe, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	cerr := f.Close()
	if err := s.fs.Remove(probe); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if cerr != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, cerr)
	}
	return nil
}

func (s *Store) resolve(relativePath string) (string, error) {
	name, err := cleanRelative(relativePath)
	if err != nil {
		return "", err
	}
	if err := s.guard.check(name); err != nil {
		return "", err
	}
	return name, nil
}

func lookupError(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrReadFailure, err)
}

func validIdentifier(id Identifier) bool {
	s := string(id)
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}
