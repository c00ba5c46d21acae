package httpserver

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/webdav"
)

// WebDAV methods are not part of chi's default method set.
func init() {
	for _, m := range []string{"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK"} {
		chi.RegisterMethod(m)
	}
}

// davState holds per-user lock systems. Locks are per home directory, so
// two users never contend.
type davState struct {
	mu    sync.Mutex
	locks map[string]webdav.LockSystem
}

func newDavState() *davState {
	return &davState{locks: make(map[string]webdav.LockSystem)}
}

func (d *davState) lockSystem(username string) webdav.LockSystem {
	d.mu.Lock()
	defer d.mu.Unlock()
	ls, ok := d.locks[username]
	if !ok {
		ls = webdav.NewMemLS()
		d.locks[username] = ls
	}
	return ls
}

// davWriteMethods require write access; davDeleteMethods require delete
// access. MOVE both relocates and removes, so it needs both.
var (
	davWriteMethods  = map[string]bool{"PUT": true, "MKCOL": true, "COPY": true, "PROPPATCH": true, "LOCK": true, "UNLOCK": true, "MOVE": true}
	davDeleteMethods = map[string]bool{"DELETE": true, "MOVE": true}
)

// handleDav serves /dav/* with the same home confinement and permission
// model as the plain HTTP surface: the WebDAV filesystem is rooted at the
// acting identity's home directory.
func (s *Server) handleDav(w http.ResponseWriter, r *http.Request) {
	user, ok := s.identity(w, r)
	if !ok {
		return
	}
	if davWriteMethods[r.Method] && !user.WriteAccess {
		BadRequest(w, "write access denied")
		return
	}
	if davDeleteMethods[r.Method] && !user.DeleteAccess {
		BadRequest(w, "delete access denied")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	h := &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: webdav.Dir(user.Home),
		LockSystem: s.dav.lockSystem(user.Username),
	}
	h.ServeHTTP(w, r)
}
