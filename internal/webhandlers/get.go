// Package webhandlers implements the GET/POST/DELETE request handlers:
// path resolution, directory listing, upload, and delete, per spec §4.4-§4.6.
package webhandlers

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/webserv/webserv/internal/errorpage"
	"github.com/webserv/webserv/internal/routetable"
	"github.com/webserv/webserv/internal/webcgi"
	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/weblog"
	"github.com/webserv/webserv/internal/webmime"
	"github.com/webserv/webserv/internal/webreq"
	"github.com/webserv/webserv/internal/webresp"
)

// Context bundles the per-request dependencies every handler needs:
// the configuration (shared, read-only), the route table for the
// connection's listening port, and a logger for diagnostics. Handlers are
// stateless dispatchers constructed per request, per spec §9.
type Context struct {
	Config *webconfig.Config
	Routes *routetable.Table
	Log    *weblog.Logger
	Port   int
}

func (c *Context) errorPage(statusCode int) *webresp.Response {
	resp := webresp.New(statusCode)
	errorpage.Apply(resp, statusCode, c.Config.RootDirectory, c.Config.DefaultErrorPagePath)
	return resp
}

// HandleGet implements spec §4.4.
func (c *Context) HandleGet(req *webreq.Request) *webresp.Response {
	decodedURL := urlDecode(req.URL)

	route := c.Routes.Find(c.Port, decodedURL)
	if route == nil {
		c.Log.Error("no route for GET %s on port %d", req.URL, c.Port)
		return c.errorPage(403)
	}

	if route.RedirectURL != "" {
		resp := webresp.New(301)
		resp.SetHeader("Location", route.RedirectURL)
		return resp
	}

	fsPath := route.FilesystemRoot + decodedURL

	if strings.Contains(fsPath, "..") {
		c.Log.Error("path traversal attempt: %s", fsPath)
		return c.errorPage(500)
	}

	if resp, handled := c.tryCGI(route, fsPath, req); handled {
		return resp
	}

	info, err := os.Stat(fsPath)
	if err == nil && info.IsDir() {
		resolvedPath, resp := c.resolveDirectory(route, fsPath, decodedURL)
		if resp != nil {
			return resp
		}
		fsPath = resolvedPath
	}

	body, err := os.ReadFile(fsPath)
	if err != nil {
		c.Log.Error("file not found: %s", fsPath)
		return c.errorPage(404)
	}

	resp := webresp.New(200)
	resp.SetHeader("Content-Type", webmime.ContentTypeForPath(fsPath))
	resp.SetBody(body)
	return resp
}

// tryCGI implements spec §4.4 step 5: strip the query string from fsPath,
// look up its extension in the route's CGI handler map, and run the
// script if one is configured.
func (c *Context) tryCGI(route *webconfig.Route, fsPath string, req *webreq.Request) (*webresp.Response, bool) {
	scriptPath := fsPath
	if idx := strings.IndexByte(scriptPath, '?'); idx != -1 {
		scriptPath = scriptPath[:idx]
	}

	dot := strings.LastIndexByte(scriptPath, '.')
	if dot == -1 {
		return nil, false
	}

	ext := scriptPath[dot:]
	interpreter, ok := route.CGIHandlerFor(ext)
	if !ok {
		return nil, false
	}

	c.Log.Debug("CGI dispatch: script=%s interpreter=%s", scriptPath, interpreter)

	resp, err := webcgi.Run(req, scriptPath, interpreter)
	if err != nil {
		c.Log.Error("CGI execution failed for %s: %v", scriptPath, err)
		return c.errorPage(500), true
	}

	return resp, true
}

// resolveDirectory implements spec §4.4 step 6: serve an index file, or
// synthesize a directory listing when enabled, or fail with 403. Returns
// the resolved filesystem path to serve next, or a non-nil response when
// the directory request has already been fully answered (listing,
// forbidden, or error).
func (c *Context) resolveDirectory(route *webconfig.Route, dirPath, url string) (string, *webresp.Response) {
	if !route.DirectoryListing {
		if indexPath := firstExistingIndex(dirPath, route.IndexFile); indexPath != "" {
			return indexPath, nil
		}
		c.Log.Error("no index file and directory listing disabled for %s", dirPath)
		return "", c.errorPage(403)
	}

	if _, err := os.Stat(dirPath); err != nil {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			c.Log.Error("failed to create directory %s: %v", dirPath, err)
			return "", c.errorPage(500)
		}
	}

	if indexPath := firstExistingIndex(dirPath, route.IndexFile); indexPath != "" {
		return indexPath, nil
	}

	listing, err := buildDirectoryListing(dirPath, url)
	if err != nil {
		c.Log.Error("failed to build directory listing for %s: %v", dirPath, err)
		return "", c.errorPage(500)
	}

	resp := webresp.New(200)
	resp.SetHeader("Content-Type", "text/html")
	resp.SetBody([]byte(listing))
	return "", resp
}

func firstExistingIndex(dirPath, indexFile string) string {
	if indexFile != "" {
		candidate := dirPath + "/" + indexFile
		if fileExists(candidate) {
			return candidate
		}
	}

	fallback := dirPath + "/index.html"
	if fileExists(fallback) {
		return fallback
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildDirectoryListing synthesizes an HTML table of directory entries
// (excluding "." and ".."), with name, size in bytes (or "-" for
// directories) and mtime formatted as "YYYY-MM-DD HH:MM:SS", per spec §4.4
// step 6.
func buildDirectoryListing(dirPath, url string) (string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return "", fmt.Errorf("read directory %s: %w", dirPath, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body><h1>Index of %s</h1><table><tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>",
		url, url)

	for _, entry := range entries {
		name := entry.Name()
		info, err := entry.Info()
		if err != nil {
			continue
		}

		displayName := name
		size := strconv.FormatInt(info.Size(), 10) + " bytes"
		if entry.IsDir() {
			displayName += "/"
			size = "-"
		}

		mtime := info.ModTime().Format("2006-01-02 15:04:05")
		href := strings.TrimSuffix(url, "/") + "/" + name

		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">%s</a></td><td>%s</td><td>%s</td></tr>",
			href, displayName, size, mtime)
	}

	b.WriteString("</table></body></html>")
	return b.String(), nil
}
