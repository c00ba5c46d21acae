package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"homefs/internal/auth"
	"homefs/internal/fsutil"
	"homefs/internal/logger"
)

// identity resolves the authenticated username back to its User record.
// The gate runs before every handler, so a miss here means the gate and the
// store have drifted apart; that is a programming-invariant violation and
// is surfaced as a 500, never swallowed.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	username := auth.UserFromContext(r.Context())
	u, ok := s.store.Lookup(username)
	if !ok {
		logger.Error("authenticated user missing from credential store", "user", username)
		InternalServerError(w, "authenticated user is not present in the credential store")
		return auth.User{}, false
	}
	return u, true
}

// handleFetch serves GET /{route...}: directories render as a listing
// (HTML, or JSON when the ?json flag is present), files stream their raw
// bytes.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	user, ok := s.identity(w, r)
	if !ok {
		return
	}
	route := fsutil.CleanRoute(r.URL.Path)
	abs, err := fsutil.ResolveWithinHome(user.Home, route)
	if err != nil {
		BadRequest(w, "invalid path")
		return
	}
	st, err := os.Stat(abs)
	if err != nil {
		NotFound(w, "no such file or directory")
		return
	}

	if st.IsDir() {
		entries, err := readListing(abs)
		if err != nil {
			InternalServerError(w, "failed to read directory")
			return
		}
		if r.URL.Query().Has("json") {
			WriteJSONOK(w, entries)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := renderListingHTML(w, route, entries, user.DeleteAccess); err != nil {
			logger.Error("listing render failed", "route", route, "error", err)
		}
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		InternalServerError(w, "failed to open file")
		return
	}
	defer f.Close()

	if ct := contentTypeForName(st.Name()); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

// handleUpload serves POST /{route...}. A multipart body writes each
// attachment to home/route/<name> via a temp-file-then-rename so concurrent
// readers never observe a partial file; a body without attachments creates
// the route as a directory instead (idempotent).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !user.WriteAccess {
		BadRequest(w, "write access denied")
		return
	}
	route := fsutil.CleanRoute(r.URL.Path)
	abs, err := fsutil.ResolveWithinHome(user.Home, route)
	if err != nil {
		BadRequest(w, "invalid path")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			BadRequest(w, "malformed multipart body")
			return
		}
		files := multipartFiles(r)
		if len(files) == 0 {
			BadRequest(w, "upload requested but no files were attached")
			return
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			InternalServerError(w, "failed to create directory")
			return
		}
		names := make([]string, 0, len(files))
		for _, fh := range files {
			name := filepath.Base(filepath.FromSlash(fh.Filename))
			if name == "" || name == "." || name == string(filepath.Separator) {
				BadRequest(w, "invalid attachment name")
				return
			}
			dst, err := fsutil.ResolveWithinHome(user.Home, path.Join(route, name))
			if err != nil {
				BadRequest(w, "invalid attachment name")
				return
			}
			if err := s.writeUpload(fh, dst); err != nil {
				logger.Error("upload failed", "user", user.Username, "route", route, "file", name, "error", err)
				InternalServerError(w, "upload failed")
				return
			}
			logger.Info("file uploaded", "user", user.Username, "route", route, "file", name, "bytes", fh.Size)
			names = append(names, name)
		}
		s.respondOrRedirect(w, r, "/"+route, map[string]any{"uploaded": names})
		return
	}

	// No attachments: create the route as a directory.
	if err := os.MkdirAll(abs, 0o755); err != nil {
		InternalServerError(w, "failed to create directory")
		return
	}
	logger.Info("directory created", "user", user.Username, "route", route)
	s.respondOrRedirect(w, r, "/"+route, map[string]any{"created": route})
}

// writeUpload copies an attachment to a temporary sibling of dst, flushes
// it, and renames it into place. A failed upload never leaves anything
// under the final name.
func (s *Server) writeUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer src.Close()

	tmp := filepath.Join(filepath.Dir(dst), ".upload-"+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// handleDelete serves DELETE /{route...}. The home root itself is never a
// valid target, regardless of permissions.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !user.DeleteAccess {
		BadRequest(w, "delete access denied")
		return
	}
	route := fsutil.CleanRoute(r.URL.Path)
	if route == "" {
		BadRequest(w, "refusing to delete the home directory")
		return
	}
	abs, err := fsutil.ResolveWithinHome(user.Home, route)
	if err != nil {
		BadRequest(w, "invalid path")
		return
	}
	st, err := os.Stat(abs)
	if err != nil {
		NotFound(w, "no such file or directory")
		return
	}

	if st.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		InternalServerError(w, "delete failed")
		return
	}
	logger.Info("entry deleted", "user", user.Username, "route", route, "dir", st.IsDir())

	parent := fsutil.ParentRoute(route)
	s.respondOrRedirect(w, r, "/"+parent, map[string]any{"deleted": route})
}

// handleMove serves PUT /move?sourceFilePath=...&destFilePath=.... Both
// routes resolve under the same home directory; the destination is never
// overwritten.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	user, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !user.WriteAccess || !user.DeleteAccess {
		BadRequest(w, "move requires write and delete access")
		return
	}

	srcRoute := fsutil.CleanRoute(r.URL.Query().Get("sourceFilePath"))
	dstRoute := fsutil.CleanRoute(r.URL.Query().Get("destFilePath"))
	if srcRoute == "" || dstRoute == "" {
		BadRequest(w, "sourceFilePath and destFilePath are required")
		return
	}

	src, err := fsutil.ResolveWithinHome(user.Home, srcRoute)
	if err != nil {
		BadRequest(w, "invalid source path")
		return
	}
	dst, err := fsutil.ResolveWithinHome(user.Home, dstRoute)
	if err != nil {
		BadRequest(w, "invalid destination path")
		return
	}

	if _, err := os.Stat(src); err != nil {
		BadRequest(w, "source does not exist")
		return
	}
	if _, err := os.Lstat(dst); err == nil {
		BadRequest(w, "destination already exists")
		return
	} else if !errors.Is(err, os.ErrNotExist) {
		InternalServerError(w, "failed to check destination")
		return
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		InternalServerError(w, "failed to create destination directory")
		return
	}
	if err := os.Rename(src, dst); err != nil {
		InternalServerError(w, "move failed")
		return
	}
	logger.Info("entry moved", "user", user.Username, "from", srcRoute, "to", dstRoute)
	WriteJSONOK(w, map[string]any{"moved": srcRoute, "to": dstRoute})
}

// respondOrRedirect honors the ?redirect query flag used by the HTML
// listing forms: redirect to target after a mutation, else answer 200.
func (s *Server) respondOrRedirect(w http.ResponseWriter, r *http.Request, target string, body any) {
	if r.URL.Query().Has("redirect") {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	WriteJSONOK(w, body)
}

// multipartFiles collects every attached file header, iterating form keys
// in sorted order for stable behavior.
func multipartFiles(r *http.Request) []*multipart.FileHeader {
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.MultipartForm.File))
	for k := range r.MultipartForm.File {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var files []*multipart.FileHeader
	for _, k := range keys {
		files = append(files, r.MultipartForm.File[k]...)
	}
	return files
}

func contentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	// Fallbacks for systems with sparse mime tables.
	switch ext {
	case ".txt", ".log", ".md", ".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".go":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
