package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDavPutGetRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "alice", http.MethodPut, "/dav/notes.txt", strings.NewReader("over dav"), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "alice", http.MethodGet, "/dav/notes.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "over dav", w.Body.String())

	// Visible through the plain surface too: same home directory.
	data, err := os.ReadFile(filepath.Join(env.homes["alice"], "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "over dav", string(data))
}

func TestDavPermissionGates(t *testing.T) {
	env := newTestEnv(t)

	// No write access: PUT refused.
	w := env.do(t, "bob", http.MethodPut, "/dav/x.txt", strings.NewReader("x"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Write but no delete: DELETE refused.
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["carol"], "keep.txt"), []byte("x"), 0o644))
	w = env.do(t, "carol", http.MethodDelete, "/dav/keep.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, err := os.Stat(filepath.Join(env.homes["carol"], "keep.txt"))
	assert.NoError(t, err)
}

func TestDavScopedToHome(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.homes["bob"], "secret.txt"), []byte("bob only"), 0o644))

	w := env.do(t, "alice", http.MethodGet, "/dav/secret.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
