package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-spool/internal/spool"
)

func seedSpool(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, fsys.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o640))
	}
}

func TestMailsRequiresCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t, withBasicAuth)

	tests := []struct {
		name     string
		user     string
		pass     string
		setAuth  bool
		wantCode int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", testUser, "nope", true, http.StatusUnauthorized},
		{"wrong user", "someone", testPass, true, http.StatusUnauthorized},
		{"empty user", "", testPass, true, http.StatusUnauthorized},
		{"valid", testUser, testPass, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mails/", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := serve(srv, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="mail-spool", charset="UTF-8"`, w.Header().Get("WWW-Authenticate"))
			}
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		})
	}
}

func TestMailsCustomRealm(t *testing.T) {
	srv, _, _ := newTestServer(t, withBasicAuth, func(c *Config) { c.Auth.Realm = "inbox" })

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/", nil))
	assert.Equal(t, `Basic realm="inbox", charset="UTF-8"`, w.Header().Get("WWW-Authenticate"))
}

func TestMailsOpenPolicy(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutAlwaysUnauthorized(t *testing.T) {
	for _, policy := range []func(*Config){func(*Config) {}, withBasicAuth} {
		srv, _, _ := newTestServer(t, policy)

		w := serve(srv, authed(httptest.NewRequest(http.MethodGet, "/mails/logout", nil)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.authDenied.WithLabelValues("logout")))
	}
}

func TestMailsLockout(t *testing.T) {
	srv, _, _ := newTestServer(t, withBasicAuth, func(c *Config) { c.Auth.LockoutAttempts = 2 })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/mails/", nil)
		req.SetBasicAuth(testUser, "wrong")
		require.Equal(t, http.StatusUnauthorized, serve(srv, req).Code)
	}

	w := serve(srv, authed(httptest.NewRequest(http.MethodGet, "/mails/", nil)))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "locked user is refused even with the right secret")
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.authDenied.WithLabelValues("locked")))
}

func TestMailsRedirectsToTrailingSlash(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/mails/", w.Header().Get("Location"))
}

func TestMailsServesItem(t *testing.T) {
	srv, store, _ := newTestServer(t, withBasicAuth)

	id, err := store.Create([]byte(`{"subject":"hello"}`))
	require.NoError(t, err)

	w := serve(srv, authed(httptest.NewRequest(http.MethodGet, "/mails/"+store.FileName(id), nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"subject":"hello"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "19", w.Header().Get("Content-Length"))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.itemsRead))
}

func TestMailsCustomContentType(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := spool.NewWithFs(fsys, spool.Config{Extension: ".eml", ContentType: "message/rfc822"})
	srv := newServerWithStore(t, store)

	id, err := store.Create([]byte("Subject: hi\r\n\r\nbody"))
	require.NoError(t, err)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/"+id.String()+".eml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "message/rfc822", w.Header().Get("Content-Type"))
}

func TestMailsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, p := range []string{"/mails/missing.json", "/mails/nope/"} {
		w := serve(srv, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}

func TestMailsRejectsTraversal(t *testing.T) {
	srv, _, fsys := newTestServer(t)
	seedSpool(t, fsys, map[string]string{"/sub/inner.json": "inner"})

	paths := []string{
		"/mails/../secret",
		"/mails/sub/../../secret",
		"/mails/..%2fsecret",
		"/mails/%2e%2e/secret",
		"/mails/%2E%2E%2Fsecret",
		"/mails/%252e%252e%252fsecret",
		"/mails/..%5csecret",
		"/mails/../",
		"/mails/%2e%2e/",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			w := serve(srv, httptest.NewRequest(http.MethodGet, p, nil))
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "not found\n", w.Body.String())
		})
	}
}

func TestMailsDirectories(t *testing.T) {
	srv, _, fsys := newTestServer(t)
	seedSpool(t, fsys, map[string]string{
		"/top.json":       "t",
		"/sub/inner.json": "inner",
	})

	t.Run("redirect", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/sub", nil))
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "/mails/sub/", w.Header().Get("Location"))
	})

	t.Run("html listing", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/sub/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

		body := w.Body.String()
		assert.Contains(t, body, "Index of /mails/sub/")
		assert.Contains(t, body, `href="/mails/sub/inner.json"`)
		assert.Contains(t, body, `href="/mails/"`)
		assert.NotContains(t, body, "top.json")
	})

	t.Run("root listing", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/", nil))
		require.Equal(t, http.StatusOK, w.Code)

		body := w.Body.String()
		assert.Contains(t, body, `href="/mails/sub/"`)
		assert.Contains(t, body, `href="/mails/top.json"`)
		assert.NotContains(t, body, "../")
	})
}

func TestMailsListingEscapesNames(t *testing.T) {
	srv, _, fsys := newTestServer(t)
	seedSpool(t, fsys, map[string]string{"/<b>odd name.json": "x"})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "<b>odd")
	assert.Contains(t, body, "&lt;b&gt;odd name.json")
	assert.Contains(t, body, `href="/mails/%3Cb%3Eodd%20name.json"`)
}

func TestMailsJSONListing(t *testing.T) {
	srv, _, fsys := newTestServer(t)
	seedSpool(t, fsys, map[string]string{
		"/b.json":   "bb",
		"/a.json":   "a",
		"/sub/c.js": "c",
	})

	check := func(t *testing.T, req *http.Request) {
		t.Helper()
		w := serve(srv, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp listingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
		require.Len(t, resp.Entries, 3)
		assert.Equal(t, "a.json", resp.Entries[0].Path)
		assert.Equal(t, "b.json", resp.Entries[1].Path)
		assert.EqualValues(t, 2, resp.Entries[1].Size)
		assert.Equal(t, "sub/", resp.Entries[2].Path)
		assert.True(t, resp.Entries[2].IsDir)
	}

	t.Run("accept header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mails/", nil)
		req.Header.Set("Accept", "text/html;q=0.5, application/json")
		check(t, req)
	})

	t.Run("query parameter", func(t *testing.T) {
		check(t, httptest.NewRequest(http.MethodGet, "/mails/?format=json", nil))
	})
}

func TestMailsUnavailableSpool(t *testing.T) {
	store, err := spool.New(spool.Config{Dir: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	srv := newServerWithStore(t, store)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "missing")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		srv.metrics.storeErrors.WithLabelValues("list", "directory_unavailable")))
}

func TestMailsReadFailure(t *testing.T) {
	mem := afero.NewMemMapFs()
	seedSpool(t, mem, map[string]string{"/broken.json": "x"})
	store := spool.NewWithFs(&failingStatFs{Fs: mem, name: "/broken.json"}, spool.Config{})
	srv := newServerWithStore(t, store)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/mails/broken.json", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error\n", w.Body.String())
}

func TestMailsSymlinkOutsideSpool(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "spool")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("TOP SECRET"), 0o600))
	if err := os.Symlink("../outside", filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	store, err := spool.New(spool.Config{Dir: dir})
	require.NoError(t, err)
	srv := newServerWithStore(t, store)

	for _, p := range []string{"/mails/link/secret", "/mails/link/"} {
		w := serve(srv, authed(httptest.NewRequest(http.MethodGet, p, nil)))
		assert.Equal(t, http.StatusNotFound, w.Code, p)
		assert.NotContains(t, w.Body.String(), "TOP SECRET")
	}

	w := serve(srv, authed(httptest.NewRequest(http.MethodGet, "/mails/", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `href="/mails/link/"`)
}
