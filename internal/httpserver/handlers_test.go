package httpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/auth"
)

type testEnv struct {
	handler http.Handler
	homes   map[string]string
}

// newTestEnv builds a server with four users covering the permission
// matrix: alice (write+delete), bob (neither), carol (write only), dave
// (delete only).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	homes := map[string]string{
		"alice": t.TempDir(),
		"bob":   t.TempDir(),
		"carol": t.TempDir(),
		"dave":  t.TempDir(),
	}
	store, err := auth.NewStore([]auth.User{
		{Username: "alice", Password: "alice-pass", Home: homes["alice"], WriteAccess: true, DeleteAccess: true},
		{Username: "bob", Password: "bob-pass", Home: homes["bob"]},
		{Username: "carol", Password: "carol-pass", Home: homes["carol"], WriteAccess: true},
		{Username: "dave", Password: "dave-pass", Home: homes["dave"], DeleteAccess: true},
	})
	require.NoError(t, err)

	srv, err := New(Options{Store: store, Realm: "homefs-test", MaxBodySize: 64 << 20})
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), homes: homes}
}

func (e *testEnv) do(t *testing.T, user, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if user != "" {
		req.Header.Set("Authorization", "Basic "+
			base64.StdEncoding.EncodeToString([]byte(user+":"+user+"-pass")))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		w := env.do(t, "", method, "/anything", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, method)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), `realm="homefs-test"`)
	}
}

func TestFetchFile(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["alice"], "hello.txt"), content, 0o644))

	w := env.do(t, "alice", http.MethodGet, "/hello.txt", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestFetchMissing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "alice", http.MethodGet, "/nope.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
}

func TestFetchDirectoryJSON(t *testing.T) {
	env := newTestEnv(t)
	home := env.homes["alice"]
	require.NoError(t, os.WriteFile(filepath.Join(home, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(home, "A"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(home, "B"), 0o755))

	w := env.do(t, "alice", http.MethodGet, "/?json", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"A", "B", "a.txt", "b.txt"}, names)
}

func TestFetchDirectoryHTML(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["alice"], "x.txt"), []byte("x"), 0o644))

	w := env.do(t, "alice", http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<a href="/x.txt">x.txt</a>`)
}

// Routes that try to climb out of the home directory resolve inside it, so
// the worst case is a 404, never another user's (or the host's) data.
func TestFetchTraversalStaysInHome(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["bob"], "secret.txt"), []byte("bob only"), 0o644))

	for _, target := range []string{
		"/../secret.txt",
		"/../../etc/passwd",
		"/a/../../secret.txt",
		"/%2e%2e/secret.txt",
	} {
		w := env.do(t, "alice", http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.NotContains(t, w.Body.String(), "bob only", target)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"report.pdf": "pdf-bytes"})

	w := env.do(t, "alice", http.MethodPost, "/docs", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "alice", http.MethodGet, "/docs/report.pdf", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf-bytes", w.Body.String())

	// No temp files left behind.
	ents, err := os.ReadDir(filepath.Join(env.homes["alice"], "docs"))
	require.NoError(t, err)
	for _, e := range ents {
		assert.False(t, strings.HasPrefix(e.Name(), ".upload-"), e.Name())
	}
}

func TestUploadWithoutWriteAccess(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"x.txt": "x"})

	w := env.do(t, "bob", http.MethodPost, "/docs", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "dave", http.MethodPost, "/docs", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadNoFiles(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no files here"))
	require.NoError(t, mw.Close())

	w := env.do(t, "alice", http.MethodPost, "/docs", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRedirect(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"y.txt": "y"})

	w := env.do(t, "alice", http.MethodPost, "/docs?redirect", body, ct)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/docs", w.Header().Get("Location"))
}

func TestPostWithoutFilesCreatesDirectory(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "alice", http.MethodPost, "/new/nested", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st, err := os.Stat(filepath.Join(env.homes["alice"], "new", "nested"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	// Idempotent.
	w = env.do(t, "alice", http.MethodPost, "/new/nested", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.homes["alice"], "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w := env.do(t, "alice", http.MethodDelete, "/doomed.txt", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteDirectoryRecursive(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.homes["alice"], "tree", "deep")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaf.txt"), []byte("x"), 0o644))

	w := env.do(t, "alice", http.MethodDelete, "/tree", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := os.Stat(filepath.Join(env.homes["alice"], "tree"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteHomeRootRefused(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/", "//", "/."} {
		w := env.do(t, "alice", http.MethodDelete, target, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	// Still refused for a user with delete access and an existing home.
	_, err := os.Stat(env.homes["alice"])
	assert.NoError(t, err)
}

func TestDeleteWithoutDeleteAccess(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["carol"], "keep.txt"), []byte("x"), 0o644))

	w := env.do(t, "carol", http.MethodDelete, "/keep.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Denied regardless of target existence.
	w = env.do(t, "carol", http.MethodDelete, "/absent.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := os.Stat(filepath.Join(env.homes["carol"], "keep.txt"))
	assert.NoError(t, err)
}

func TestDeleteMissing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "alice", http.MethodDelete, "/absent.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRedirectsToParent(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.homes["alice"], "docs")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.txt"), []byte("x"), 0o644))

	w := env.do(t, "alice", http.MethodDelete, "/docs/gone.txt?redirect", nil, "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/docs", w.Header().Get("Location"))
}

func TestMethodOverrideDeletes(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.homes["alice"], "form-target.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	form := url.Values{"_method": {"DELETE"}}
	w := env.do(t, "alice", http.MethodPost, "/form-target.txt?redirect",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusSeeOther, w.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMove(t *testing.T) {
	env := newTestEnv(t)
	home := env.homes["alice"]
	require.NoError(t, os.WriteFile(filepath.Join(home, "src.txt"), []byte("payload"), 0o644))

	w := env.do(t, "alice", http.MethodPut, "/move?sourceFilePath=src.txt&destFilePath=dir/dst.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := os.Stat(filepath.Join(home, "src.txt"))
	assert.True(t, os.IsNotExist(err))
	moved, err := os.ReadFile(filepath.Join(home, "dir", "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(moved))
}

func TestMoveDestinationExists(t *testing.T) {
	env := newTestEnv(t)
	home := env.homes["alice"]
	// Byte-identical files still refuse to overwrite.
	require.NoError(t, os.WriteFile(filepath.Join(home, "src.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, "dst.txt"), []byte("same"), 0o644))

	w := env.do(t, "alice", http.MethodPut, "/move?sourceFilePath=src.txt&destFilePath=dst.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := os.Stat(filepath.Join(home, "src.txt"))
	assert.NoError(t, err, "source must survive a refused move")
}

func TestMoveSourceMissing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "alice", http.MethodPut, "/move?sourceFilePath=absent.txt&destFilePath=dst.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMoveRequiresBothPermissions(t *testing.T) {
	env := newTestEnv(t)
	for _, user := range []string{"bob", "carol", "dave"} {
		require.NoError(t, os.WriteFile(filepath.Join(env.homes[user], "src.txt"), []byte("x"), 0o644))
		w := env.do(t, user, http.MethodPut, "/move?sourceFilePath=src.txt&destFilePath=dst.txt", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, user)
	}
}

func TestMoveMissingParams(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "alice", http.MethodPut, "/move?sourceFilePath=src.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "alice", http.MethodPut, "/move", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFaviconPassthrough(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "alice", http.MethodGet, "/favicon.ico", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHiddenEntriesNotListed(t *testing.T) {
	env := newTestEnv(t)
	home := env.homes["alice"]
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, "visible.txt"), []byte("x"), 0o644))

	w := env.do(t, "alice", http.MethodGet, "/?json", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), ".env")
	assert.Contains(t, w.Body.String(), "visible.txt")
}
