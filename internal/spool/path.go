package spool

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// maxUnescapeRounds bounds how many layers of percent-encoding are peeled
// off a path while looking for traversal segments.
const maxUnescapeRounds = 4

// cleanRelative validates a client supplied path and returns it rooted at
// "/" in slash form, as used on the spool filesystem. "" maps to "/".
func cleanRelative(rel string) (string, error) {
	for _, candidate := range unescapedForms(rel) {
		if escapes(candidate) {
			return "", ErrTraversalRejected
		}
	}
	return path.Clean("/" + strings.ReplaceAll(rel, `\`, "/")), nil
}

// unescapedForms returns rel followed by each successive percent-decoding
// of it, stopping once decoding no longer changes the string.
func unescapedForms(rel string) []string {
	forms := []string{rel}
	cur := rel
	for i := 0; i < maxUnescapeRounds; i++ {
		next, err := url.PathUnescape(cur)
		if err != nil || next == cur {
			break
		}
		forms = append(forms, next)
		cur = next
	}
	return forms
}

func escapes(p string) bool {
	if strings.ContainsRune(p, 0) {
		return true
	}
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return true
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// rootGuard resolves symlinks under an on-disk spool root and rejects
// paths whose target lies outside it. The zero value accepts everything,
// for filesystems that have no symlinks.
type rootGuard struct {
	dir string
}

// check returns ErrTraversalRejected when name, rooted at "/", resolves to
// a location outside the spool root.
func (g rootGuard) check(name string) error {
	if g.dir == "" {
		return nil
	}
	root, err := filepath.EvalSymlinks(g.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	target, err := filepath.EvalSymlinks(filepath.Join(g.dir, filepath.FromSlash(name)))
	if err != nil {
		return lookupError(err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrTraversalRejected
	}
	return nil
}
