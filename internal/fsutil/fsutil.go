// Package fsutil resolves request routes to filesystem paths confined to a
// user's home directory.
package fsutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a resolved path would leave the home
// directory.
var ErrPathEscape = errors.New("path escapes home directory")

// CleanRoute takes a request path like "", ".", "/a/b", "a//b", "a/../b" and
// returns a safe, slash-based, no-leading-slash relative route ("" means the
// home root).
func CleanRoute(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// ResolveWithinHome returns an absolute filesystem path under home for a
// given route. It rejects NUL bytes and any result that is not home itself
// or a descendant of it.
func ResolveWithinHome(home, route string) (string, error) {
	route = CleanRoute(route)
	if strings.Contains(route, "\x00") {
		return "", errors.New("invalid path")
	}
	homeClean := filepath.Clean(home)
	if route == "" {
		return homeClean, nil
	}
	abs := filepath.Clean(filepath.Join(homeClean, filepath.FromSlash(route)))
	if abs != homeClean && !strings.HasPrefix(abs, homeClean+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}

// ParentRoute trims the final segment of a route. The home root is its own
// parent.
func ParentRoute(route string) string {
	route = CleanRoute(route)
	i := strings.LastIndexByte(route, '/')
	if i < 0 {
		return ""
	}
	return route[:i]
}
