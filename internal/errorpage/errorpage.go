// Package errorpage maps a status code to an HTML response body, per
// spec §7: first a configured error page loaded fresh from disk, then a
// built-in template, then a last-resort one-line snippet. Template content
// itself is an opaque, out-of-scope concern (spec.md §1) — only the
// fallback chain matters.
package errorpage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/webserv/webserv/internal/webresp"
)

var builtinTemplates = map[int]string{
	400: "<html><body><h1>400 Bad Request</h1><p>The request could not be understood.</p></body></html>",
	401: "<html><body><h1>401 Unauthorized</h1><p>Authentication is required.</p></body></html>",
	403: "<html><body><h1>403 Forbidden</h1><p>You do not have permission to access this resource.</p></body></html>",
	404: "<html><body><h1>404 Not Found</h1><p>The requested resource could not be found.</p></body></html>",
	405: "<html><body><h1>405 Method Not Allowed</h1><p>This method is not allowed for the requested route.</p></body></html>",
	408: "<html><body><h1>408 Request Timeout</h1><p>The server timed out waiting for the request.</p></body></html>",
	409: "<html><body><h1>409 Conflict</h1><p>The request conflicts with the current state of the resource.</p></body></html>",
	411: "<html><body><h1>411 Length Required</h1><p>A Content-Length header is required.</p></body></html>",
	413: "<html><body><h1>413 Payload Too Large</h1><p>The request body exceeds the allowed size.</p></body></html>",
	414: "<html><body><h1>414 URI Too Long</h1><p>The requested URL is too long.</p></body></html>",
	415: "<html><body><h1>415 Unsupported Media Type</h1><p>The request's media type is not supported.</p></body></html>",
	500: "<html><body><h1>500 Internal Server Error</h1><p>An unexpected error occurred while processing the request.</p></body></html>",
}

// Apply sets resp's status code and body for statusCode, preferring the
// configured error page at rootDirectory/defaultErrorPagePath (loaded
// fresh, per request, since the spec calls for no caching of this file),
// then a built-in template, then a last-resort snippet built from the code
// and reason phrase.
func Apply(resp *webresp.Response, statusCode int, rootDirectory, defaultErrorPagePath string) {
	resp.StatusCode = statusCode
	resp.SetHeader("Content-Type", "text/html")

	if rootDirectory != "" && defaultErrorPagePath != "" {
		path := filepath.Join(rootDirectory, defaultErrorPagePath)
		if body, err := os.ReadFile(path); err == nil {
			resp.SetBody(body)
			return
		}
	}

	if body, ok := builtinTemplates[statusCode]; ok {
		resp.SetBody([]byte(body))
		return
	}

	resp.SetBody([]byte(fmt.Sprintf(
		"<html><body><h1>%d %s</h1></body></html>",
		statusCode, webresp.ReasonPhrase(statusCode),
	)))
}
