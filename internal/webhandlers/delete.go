package webhandlers

import (
	"os"
	"strings"

	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/webreq"
	"github.com/webserv/webserv/internal/webresp"
)

// HandleDelete implements spec §4.6.
func (c *Context) HandleDelete(req *webreq.Request) *webresp.Response {
	route := c.Routes.Find(c.Port, req.URL)
	if route == nil {
		c.Log.Error("no route for DELETE %s on port %d", req.URL, c.Port)
		return c.errorPage(403)
	}

	if !route.MethodAllowed(webconfig.MethodDelete) {
		c.Log.Error("DELETE not allowed for %s on port %d", req.URL, c.Port)
		return c.errorPage(405)
	}

	uploadDir := uploadDirectoryFor(route)

	lastSlash := strings.LastIndexByte(req.URL, '/')
	encodedFilename := req.URL[lastSlash+1:]
	filename := urlDecode(encodedFilename)

	if filename == "" {
		c.Log.Error("empty filename in DELETE request for %s", req.URL)
		return c.errorPage(400)
	}

	filePath := uploadDir + "/" + filename

	if _, err := os.Stat(filePath); err != nil {
		c.Log.Error("file not found for DELETE: %s", filePath)
		return c.errorPage(404)
	}

	if err := os.Remove(filePath); err != nil {
		c.Log.Error("failed to remove %s: %v", filePath, err)
		return c.errorPage(500)
	}

	resp := webresp.New(204)
	resp.SetHeader("Content-Type", "text/html")
	resp.SetBody([]byte("<html><body><h1>204 No Content</h1><p>File deleted.</p></body></html>"))
	return resp
}
