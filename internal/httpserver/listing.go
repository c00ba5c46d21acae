package httpserver

import (
	"html/template"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"homefs/internal/fsutil"
	"homefs/internal/sizefmt"
)

// Entry is one row of a directory listing, derived live from a stat call
// and never cached.
type Entry struct {
	Name                          string    `json:"name"`
	IsDirectory                   bool      `json:"isDirectory"`
	FileSizeBytes                 *int64    `json:"fileSizeBytes"`
	FileSize                      *string   `json:"fileSize"`
	LastWriteTimeUtc              time.Time `json:"lastWriteTimeUtc"`
	LastWriteTimeUtcUnixtimeStamp int64     `json:"lastWriteTimeUtcUnixtimeStamp"`
}

const sizeDecimals = 1

// readListing enumerates the immediate children of dir, excluding hidden
// (dot-prefixed) entries, ordered directories-first and ascending by name
// within each group.
func readListing(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(ents))
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Entry vanished between ReadDir and stat.
			continue
		}
		mtime := info.ModTime().UTC()
		entry := Entry{
			Name:                          name,
			IsDirectory:                   e.IsDir(),
			LastWriteTimeUtc:              mtime,
			LastWriteTimeUtcUnixtimeStamp: mtime.Unix(),
		}
		if !entry.IsDirectory {
			size := info.Size()
			human := sizefmt.Format(size, sizeDecimals)
			entry.FileSizeBytes = &size
			entry.FileSize = &human
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

var listingTmpl = template.Must(template.New("listing").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<ul>
{{- if .ShowParent}}
<li><a href="{{.ParentHref}}">../</a></li>
{{- end}}
{{- range .Rows}}
<li><a href="{{.Href}}">{{.Label}}</a>{{if .Size}} &mdash; {{.Size}}{{end}} &mdash; {{.Modified}}
{{- if $.CanDelete}} <form method="POST" action="{{.DeleteAction}}" style="display:inline"><input type="hidden" name="_method" value="DELETE"><button type="submit">delete</button></form>{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

type listingRow struct {
	Href         string
	Label        string
	Size         string
	Modified     string
	DeleteAction string
}

type listingPage struct {
	Title      string
	ShowParent bool
	ParentHref string
	CanDelete  bool
	Rows       []listingRow
}

// renderListingHTML writes the hyperlinked listing for route. canDelete
// controls whether per-entry delete forms are emitted.
func renderListingHTML(w io.Writer, route string, entries []Entry, canDelete bool) error {
	page := listingPage{
		Title:     "/" + route,
		CanDelete: canDelete,
	}
	if route != "" {
		page.ShowParent = true
		parent := fsutil.ParentRoute(route)
		if parent == "" {
			page.ParentHref = "/"
		} else {
			page.ParentHref = "/" + parent
		}
	}
	for _, e := range entries {
		href := "/" + path.Join(route, e.Name)
		row := listingRow{
			Href:         href,
			Label:        e.Name,
			Modified:     e.LastWriteTimeUtc.Format("2006-01-02 15:04:05") + " UTC",
			DeleteAction: href + "?redirect",
		}
		if e.IsDirectory {
			row.Label += "/"
		} else if e.FileSize != nil {
			row.Size = *e.FileSize
		}
		page.Rows = append(page.Rows, row)
	}
	return listingTmpl.Execute(w, page)
}
