package server

import (
	"html/template"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FileBrowser lists and serves finished downloads under the download root
type FileBrowser struct {
	root   string
	logger *zap.Logger
}

// NewFileBrowser creates a new FileBrowser rooted at root
func NewFileBrowser(root string, logger *zap.Logger) *FileBrowser {
	return &FileBrowser{root: root, logger: logger}
}

type fileEntry struct {
	Name    string
	Link    string
	Size    string
	ModTime string
	IsDir   bool
}

type listing struct {
	Path    string
	Parent  string
	Entries []fileEntry
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Downloads - {{.Path}}</title>
<style>
body { font-family: sans-serif; margin: 20px; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; }
.size { text-align: right; }
</style>
</head>
<body>
<h1>{{.Path}}</h1>
<table>
{{if .Parent}}<tr><td colspan="3"><a href="{{.Parent}}">..</a></td></tr>{{end}}
<tr><th>Name</th><th>Size</th><th>Modified</th></tr>
{{range .Entries}}<tr><td><a href="{{.Link}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td><td class="size">{{.Size}}</td><td>{{.ModTime}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// HandleBrowse lists a directory or serves a file: GET /files/*
func (b *FileBrowser) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	requestPath := strings.Trim(chi.URLParam(r, "*"), "/")
	fullPath := filepath.Join(b.root, filepath.FromSlash(requestPath))

	rel, err := filepath.Rel(b.root, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Path not found", http.StatusNotFound)
		} else {
			b.logger.Error("failed to stat path", zap.String("path", fullPath), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if !info.IsDir() {
		http.ServeFile(w, r, fullPath)
		return
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		b.logger.Error("failed to read directory", zap.String("path", fullPath), zap.Error(err))
		http.Error(w, "Failed to read directory", http.StatusInternalServerError)
		return
	}

	page := listing{Path: "/" + requestPath, Entries: b.buildEntries(entries, requestPath)}
	if requestPath != "" {
		page.Parent = path.Join("/files", path.Dir(requestPath))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listingTemplate.Execute(w, page); err != nil {
		b.logger.Error("failed to render listing", zap.Error(err))
	}
}

// buildEntries lists directories first, then files, each alphabetically
func (b *FileBrowser) buildEntries(entries []os.DirEntry, requestPath string) []fileEntry {
	out := make([]fileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		fe := fileEntry{
			Name:    entry.Name(),
			Link:    path.Join("/files", requestPath, entry.Name()),
			Size:    "-",
			ModTime: info.ModTime().Format(time.DateTime),
			IsDir:   entry.IsDir(),
		}
		if !fe.IsDir {
			fe.Size = humanize.IBytes(uint64(info.Size()))
		}
		out = append(out, fe)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
