package webhandlers

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/webreq"
	"github.com/webserv/webserv/internal/webresp"
)

const multipartFilenameMarker = `filename="`

// nowUnix returns the current Unix timestamp, used for the 1-second
// resolution timestamped upload filenames spec §4.5/§5 calls for. Two
// concurrent uploads within the same second may race on the same
// filename; the spec names this a known, accepted limitation rather than
// something to engineer around.
func nowUnix() int64 { return time.Now().Unix() }

// HandlePost implements spec §4.5.
func (c *Context) HandlePost(req *webreq.Request) *webresp.Response {
	if cl := req.Header("content-length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > c.Config.MaxPostRequestSize {
			c.Log.Error("POST Content-Length %d exceeds max_post_request_size %d", n, c.Config.MaxPostRequestSize)
			return c.errorPage(413)
		}
	}

	route := c.Routes.Find(c.Port, req.URL)
	if route == nil || !route.MethodAllowed(webconfig.MethodPost) {
		c.Log.Error("POST not allowed for %s on port %d", req.URL, c.Port)
		return c.errorPage(405)
	}

	uploadDir := uploadDirectoryFor(route)

	filename, payload, err := choosePostFilenameAndBody(req)
	if err != nil {
		c.Log.Error("failed to extract POST payload: %v", err)
		return c.errorPage(500)
	}

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		c.Log.Error("failed to create upload directory %s: %v", uploadDir, err)
		return c.errorPage(500)
	}

	filePath := uploadDir + "/" + filename
	if err := os.WriteFile(filePath, payload, 0644); err != nil {
		c.Log.Error("failed to write uploaded file %s: %v", filePath, err)
		return c.errorPage(500)
	}

	resp := webresp.New(201)
	resp.SetHeader("Content-Type", "text/html")
	resp.SetBody([]byte("<html><body><h1>201 Created</h1><p>Upload accepted.</p></body></html>"))
	return resp
}

// uploadDirectoryFor computes filesystem_root/upload_directory, stripping
// a leading "./" the way the original's handle_http_post_request does.
func uploadDirectoryFor(route *webconfig.Route) string {
	dir := route.FilesystemRoot + "/" + route.UploadDirectory
	if strings.HasPrefix(dir, "./") {
		dir = dir[2:]
	}
	return dir
}

// choosePostFilenameAndBody implements spec §4.5 step 4: decide the
// upload's filename and payload bytes based on Content-Length and
// Content-Type.
func choosePostFilenameAndBody(req *webreq.Request) (filename string, payload []byte, err error) {
	cl := req.Header("content-length")

	if cl == "" || cl == "0" {
		return fmt.Sprintf("empty_post_%d.txt", nowUnix()), nil, nil
	}

	ct := req.Header("content-type")
	if strings.Contains(ct, "multipart/form-data") && req.Boundary != "" {
		body, err := extractMultipartPart(req.Body, req.Boundary)
		if err != nil {
			return "", nil, err
		}

		name := extractMultipartFilename(req.Body)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d.txt", nowUnix())
		}

		return name, body, nil
	}

	return fmt.Sprintf("post_%d.txt", nowUnix()), req.Body, nil
}

// extractMultipartFilename finds the first filename="..." parameter in the
// raw multipart body.
func extractMultipartFilename(body []byte) string {
	idx := strings.Index(string(body), multipartFilenameMarker)
	if idx == -1 {
		return ""
	}

	start := idx + len(multipartFilenameMarker)
	rest := string(body[start:])

	end := strings.IndexByte(rest, '"')
	if end == -1 {
		return ""
	}

	return rest[:end]
}

// extractMultipartPart implements spec §4.5a: locate the first part's
// payload between the headers-blank-line and the next boundary marker.
// Any of the three searches failing is a hard error.
func extractMultipartPart(body []byte, boundary string) ([]byte, error) {
	fullBoundary := "--" + boundary

	start := strings.Index(string(body), fullBoundary)
	if start == -1 {
		return nil, fmt.Errorf("couldn't find first request boundary")
	}

	headerEnd := strings.Index(string(body[start:]), "\r\n\r\n")
	if headerEnd == -1 {
		return nil, fmt.Errorf("couldn't find end of request headers")
	}
	contentStart := start + headerEnd + 4

	endIdx := strings.Index(string(body[contentStart:]), fullBoundary)
	if endIdx == -1 {
		return nil, fmt.Errorf("couldn't find ending request boundary")
	}
	contentEnd := contentStart + endIdx

	if contentEnd-contentStart >= 2 && string(body[contentEnd-2:contentEnd]) == "\r\n" {
		contentEnd -= 2
	}

	return body[contentStart:contentEnd], nil
}
