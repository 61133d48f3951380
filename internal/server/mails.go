package server

import (
	"errors"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mail-spool/internal/spool"
)

// mailsPrefix is where the spool is mounted for consumers.
const mailsPrefix = "/mails/"

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Title}}</title>
<style>body{font-family:monospace}td{padding:0 1em 0 0}</style>
</head>
<body>
<h1>Index of {{.Title}}</h1>
<table>
{{- if .Parent}}
<tr><td><a href="{{.Parent}}">../</a></td><td></td></tr>
{{- end}}
{{- range .Entries}}
<tr><td><a href="{{.Href}}">{{.Name}}</a></td><td>{{if not .IsDir}}{{.Size}}{{end}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

type listingEntry struct {
	spool.Entry
	Href string
}

type listingPage struct {
	Title   string
	Parent  string
	Entries []listingEntry
}

// listingResponse is the JSON form of a directory listing.
type listingResponse struct {
	Dir     string        `json:"dir"`
	Count   int           `json:"count"`
	Entries []spool.Entry `json:"entries"`
}

// listHandler serves the spool root listing.
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/") {
		http.Redirect(w, r, mailsPrefix, http.StatusMovedPermanently)
		return
	}
	s.renderListing(w, r, "")
}

// itemHandler serves one item, or the listing of a sub-directory.
func (s *Server) itemHandler(w http.ResponseWriter, r *http.Request) {
	rel, ok := wildcardPath(r)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if rel == "" || strings.HasSuffix(rel, "/") {
		s.renderListing(w, r, strings.TrimSuffix(rel, "/"))
		return
	}

	rid := RequestIDFromContext(r.Context())
	b, err := s.store.Read(rel)
	switch {
	case err == nil:
	case errors.Is(err, spool.ErrIsDirectory):
		http.Redirect(w, r, r.URL.EscapedPath()+"/", http.StatusMovedPermanently)
		return
	case spool.IsNotFound(err):
		if errors.Is(err, spool.ErrTraversalRejected) {
			s.log.Warn("traversal rejected", map[string]any{"rid": rid, "path": rel})
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	default:
		s.metrics.RecordStoreError("read", err)
		s.log.Error("read failed", map[string]any{"rid": rid, "path": rel, "kind": spool.Kind(err)}, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.metrics.RecordRead(len(b))
	w.Header().Set("Content-Type", s.store.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// renderListing lists dir ("" for the root) as HTML or JSON.
func (s *Server) renderListing(w http.ResponseWriter, r *http.Request, dir string) {
	rid := RequestIDFromContext(r.Context())

	entries, err := s.lister.List(dir)
	if err != nil {
		if spool.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.metrics.RecordStoreError("list", err)
		s.log.Error("listing failed", map[string]any{"rid": rid, "dir": dir, "kind": spool.Kind(err)}, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		respondJSON(w, http.StatusOK, listingResponse{
			Dir:     dir,
			Count:   len(entries),
			Entries: entries,
		})
		return
	}

	page := listingPage{
		Title:   mailsPrefix + dirSlash(dir),
		Entries: make([]listingEntry, 0, len(entries)),
	}
	if dir != "" {
		page.Parent = mailsPrefix + escapePath(dirSlash(path.Dir(dir)))
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, listingEntry{Entry: e, Href: mailsPrefix + escapePath(e.Path)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := listingTemplate.Execute(w, page); err != nil {
		s.log.Error("listing render failed", map[string]any{"rid": rid}, err)
	}
}

// wildcardPath returns the decoded path below /mails/. chi matches on the
// raw path when the request carried escapes, so decode in that case only.
func wildcardPath(r *http.Request) (string, bool) {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return p, true
	}
	u, err := url.PathUnescape(p)
	if err != nil {
		return "", false
	}
	return u, true
}

func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// dirSlash turns a cleaned directory ("" or ".") into its URL form with a
// trailing slash.
func dirSlash(dir string) string {
	if dir == "" || dir == "." || dir == "/" {
		return ""
	}
	return strings.TrimSuffix(dir, "/") + "/"
}

// escapePath percent-encodes every segment of p, keeping the separators.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
