package webhandlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/webserv/webserv/internal/routetable"
	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/weblog"
	"github.com/webserv/webserv/internal/webreq"
)

func newTestContext(t *testing.T, root string, routes []webconfig.Route) *Context {
	t.Helper()

	cfg := &webconfig.Config{
		RootDirectory:        root,
		DefaultErrorPagePath: "missing-error.html",
		MaxPostRequestSize:   1 << 20,
		Routes:               routes,
	}

	return &Context{
		Config: cfg,
		Routes: routetable.New(routes),
		Log:    weblog.New(false),
		Port:   8080,
	}
}

func newRequest(t *testing.T, raw string) *webreq.Request {
	t.Helper()
	req := webreq.New()
	if _, err := req.Feed([]byte(raw)); err != nil {
		t.Fatalf("failed to parse test request: %v", err)
	}
	return req
}

func TestHandleGetServesStaticFile(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/", FilesystemRoot: root, ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi there"), 0644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	req := newRequest(t, "GET /hello.txt HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "hi there" {
		t.Errorf("expected body %q, got %q", "hi there", resp.Body)
	}
}

func TestHandleGetMissingFileReturns404(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/", FilesystemRoot: root, ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	req := newRequest(t, "GET /nope.txt HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleGetNoRouteReturns403(t *testing.T) {
	ctx := newTestContext(t, t.TempDir(), nil)

	req := newRequest(t, "GET /anything HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 403 {
		t.Errorf("expected 403 for an unmatched route, got %d", resp.StatusCode)
	}
}

func TestHandleGetRedirectRoute(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/old", FilesystemRoot: root, RedirectURL: "/new", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	req := newRequest(t, "GET /old HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 301 {
		t.Fatalf("expected 301, got %d", resp.StatusCode)
	}
	if resp.Header("Location") != "/new" {
		t.Errorf("expected Location /new, got %q", resp.Header("Location"))
	}
}

func TestHandleGetPathTraversalBlocked(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/", FilesystemRoot: root, ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	req := newRequest(t, "GET /../../../etc/passwd HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 500 {
		t.Errorf("expected 500 for a path containing '..', got %d", resp.StatusCode)
	}
}

func TestHandleGetServesIndexFileForDirectory(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/", FilesystemRoot: root, IndexFile: "index.html", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>home</h1>"), 0644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	req := newRequest(t, "GET / HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "<h1>home</h1>" {
		t.Errorf("unexpected body: %q", resp.Body)
	}
}

func TestHandleGetDirectoryListingWhenEnabled(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/files", FilesystemRoot: root, DirectoryListing: true, ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	filesDir := filepath.Join(root, "files")
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		t.Fatalf("fixture mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(filesDir, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	req := newRequest(t, "GET /files HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header("Content-Type") != "text/html" {
		t.Errorf("expected an HTML directory listing, got %q", resp.Header("Content-Type"))
	}
}

func TestHandleGetDispatchesToCGI(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{
			URLPath:             "/",
			FilesystemRoot:      root,
			ServerListeningPort: 8080,
			AllowedMethods:      []webconfig.Method{webconfig.MethodGet},
			CGIHandlers:         map[string]string{".sh": "/bin/sh"},
		},
	})

	script := "#!/bin/sh\nprintf 'Content-Type: text/plain\\r\\n\\r\\nOK'\n"
	if err := os.WriteFile(filepath.Join(root, "script.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	req := newRequest(t, "GET /script.sh?x=1 HTTP/1.1\r\n\r\n")
	resp := ctx.HandleGet(req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header("Content-Type") != "text/plain" {
		t.Errorf("expected Content-Type text/plain, got %q", resp.Header("Content-Type"))
	}
	if string(resp.Body) != "OK" {
		t.Errorf("expected body %q, got %q", "OK", resp.Body)
	}
}

func TestHandlePostWithoutBodyCreatesEmptyMarkerFile(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/upload", FilesystemRoot: root, UploadDirectory: "uploads", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet, webconfig.MethodPost}},
	})

	req := newRequest(t, "POST /upload HTTP/1.1\r\n\r\n")
	resp := ctx.HandlePost(req)

	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(filepath.Join(root, "uploads"))
	if err != nil {
		t.Fatalf("expected upload directory to exist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one uploaded marker file, got %d", len(entries))
	}
}

func TestHandlePostMethodNotAllowed(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/readonly", FilesystemRoot: root, ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	req := newRequest(t, "POST /readonly HTTP/1.1\r\nContent-Length: 4\r\n\r\ntest")
	resp := ctx.HandlePost(req)

	if resp.StatusCode != 405 {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandlePostRawBody(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/upload", FilesystemRoot: root, UploadDirectory: "uploads", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet, webconfig.MethodPost}},
	})

	req := newRequest(t, "POST /upload HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello there")
	resp := ctx.HandlePost(req)

	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(filepath.Join(root, "uploads"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one uploaded file, got %v, err=%v", entries, err)
	}

	body, err := os.ReadFile(filepath.Join(root, "uploads", entries[0].Name()))
	if err != nil {
		t.Fatalf("failed reading uploaded file: %v", err)
	}
	if string(body) != "hello there" {
		t.Errorf("expected uploaded body %q, got %q", "hello there", body)
	}
}

func TestHandleDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/uploads", FilesystemRoot: root, UploadDirectory: "uploads", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet, webconfig.MethodDelete}},
	})

	uploadDir := filepath.Join(root, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		t.Fatalf("fixture mkdir failed: %v", err)
	}
	targetPath := filepath.Join(uploadDir, "doomed.txt")
	if err := os.WriteFile(targetPath, []byte("x"), 0644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	req := newRequest(t, "DELETE /uploads/doomed.txt HTTP/1.1\r\n\r\n")
	resp := ctx.HandleDelete(req)

	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		t.Error("expected a 204 template body, got none")
	}
	if _, err := os.Stat(targetPath); !os.IsNotExist(err) {
		t.Error("expected the file to have been removed")
	}
}

func TestHandleDeleteMissingFileReturns404(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/uploads", FilesystemRoot: root, UploadDirectory: "uploads", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet, webconfig.MethodDelete}},
	})
	os.MkdirAll(filepath.Join(root, "uploads"), 0755)

	req := newRequest(t, "DELETE /uploads/nope.txt HTTP/1.1\r\n\r\n")
	resp := ctx.HandleDelete(req)

	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleDeleteMethodNotAllowed(t *testing.T) {
	root := t.TempDir()
	ctx := newTestContext(t, root, []webconfig.Route{
		{URLPath: "/uploads", FilesystemRoot: root, UploadDirectory: "uploads", ServerListeningPort: 8080, AllowedMethods: []webconfig.Method{webconfig.MethodGet}},
	})

	req := newRequest(t, "DELETE /uploads/x.txt HTTP/1.1\r\n\r\n")
	resp := ctx.HandleDelete(req)

	if resp.StatusCode != 405 {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}
