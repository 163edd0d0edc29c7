// Package webcgi implements the CGI/1.1 subprocess protocol: environment
// marshalling, bidirectional pipe I/O, chunked-body decoding, and response
// splicing, per spec §4.7. Process lifecycle is delegated to os/exec
// (Cmd.Start/Wait) rather than hand-rolled fork/dup2/execve, since Go's
// runtime cannot safely fork a multi-threaded process — os/exec performs
// the equivalent fork+exec internally and is the idiomatic Go translation
// of CGIHandler::execute_cgi_script.
package webcgi

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/webserv/webserv/internal/webreq"
	"github.com/webserv/webserv/internal/webresp"
)

const readChunkSize = 4096

// Run executes the CGI script at scriptPath using the interpreter at
// interpreterPath against req, and returns the response it produced.
// Errors are the caller's responsibility to convert to a 500 response.
func Run(req *webreq.Request, scriptPath, interpreterPath string) (*webresp.Response, error) {
	absoluteScript, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("resolve script path %s: %w", scriptPath, err)
	}
	absoluteScript = filepath.Clean(absoluteScript)

	env := buildEnvironment(req, absoluteScript)

	body, err := requestBody(req)
	if err != nil {
		return nil, fmt.Errorf("prepare CGI request body: %w", err)
	}

	scriptDir := filepath.Dir(absoluteScript)

	cmd := exec.Command(interpreterPath, absoluteScript)
	cmd.Dir = scriptDir
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open CGI stdin pipe: %w", err)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start CGI process: %w", err)
	}

	if len(body) > 0 {
		n, writeErr := stdin.Write(body)
		if writeErr != nil || n != len(body) {
			stdin.Close()
			cmd.Wait()
			return nil, fmt.Errorf("write CGI request body: %w", writeErr)
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("CGI script execution failed: %w", err)
	}

	return spliceResponse(stdout.Bytes()), nil
}

// buildEnvironment constructs the CGI/1.1 environment table from spec
// §4.7's table, plus the original implementation's fallback of defaulting
// REQUEST_METHOD to GET and QUERY_STRING to "" when they would otherwise be
// empty.
func buildEnvironment(req *webreq.Request, absoluteScript string) []string {
	url := req.URL
	pathInfo := url
	queryString := ""
	if idx := strings.IndexByte(url, '?'); idx != -1 {
		pathInfo = url[:idx]
		queryString = url[idx+1:]
	}

	requestMethod := "GET"
	if req.Method == webreq.MethodPost {
		requestMethod = "POST"
	}

	vars := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_PROTOCOL":   req.Version,
		"REDIRECT_STATUS":   "200",
		"REQUEST_METHOD":    requestMethod,
		"PATH_INFO":         pathInfo,
		"PATH_TRANSLATED":   absoluteScript,
		"SCRIPT_NAME":       absoluteScript,
		"SCRIPT_FILENAME":   absoluteScript,
		"QUERY_STRING":      queryString,
		"REQUEST_URI":       url,
	}

	if req.Method == webreq.MethodPost {
		vars["CONTENT_LENGTH"] = req.Header("content-length")
		vars["CONTENT_TYPE"] = req.Header("content-type")
	}

	for name, value := range req.Headers() {
		envName := "HTTP_" + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
		vars[envName] = value
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env
}

// requestBody returns the bytes to write to the CGI script's stdin,
// decoding chunked transfer-encoding when present.
func requestBody(req *webreq.Request) ([]byte, error) {
	if req.Method != webreq.MethodPost {
		return nil, nil
	}

	if req.Header("transfer-encoding") == "chunked" {
		return decodeChunked(req.Body)
	}

	return req.Body, nil
}

// decodeChunked decodes an HTTP chunked-transfer body: a sequence of
// hex-size lines each followed by that many payload bytes and a trailing
// CRLF, terminated by a zero-size chunk.
func decodeChunked(body []byte) ([]byte, error) {
	var result bytes.Buffer
	reader := bytes.NewReader(body)

	for {
		sizeLine, err := readLine(reader)
		if err != nil {
			if err == io.EOF && sizeLine == "" {
				break
			}
			return nil, fmt.Errorf("read chunk size: %w", err)
		}

		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse chunk size %q: %w", sizeLine, err)
		}
		if size == 0 {
			break
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(reader, chunk); err != nil {
			return nil, fmt.Errorf("read chunk payload: %w", err)
		}
		result.Write(chunk)

		trailer := make([]byte, 2)
		if _, err := io.ReadFull(reader, trailer); err != nil {
			return nil, fmt.Errorf("read chunk trailer: %w", err)
		}
	}

	return result.Bytes(), nil
}

func readLine(r *bytes.Reader) (string, error) {
	var line bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return line.String(), err
		}
		if b == '\n' {
			s := line.String()
			return strings.TrimSuffix(s, "\r"), nil
		}
		line.WriteByte(b)
	}
}

// spliceResponse splits CGI script output on the first "\r\n\r\n": the left
// side is parsed as "Name: Value" header lines and applied to the
// response, the right side becomes the body. If no separator is found, the
// entire output becomes the body with Content-Type text/html. The CGI
// Status: header is never honored; the response is always 200, per
// spec §4.7/§9.
func spliceResponse(output []byte) *webresp.Response {
	resp := webresp.New(200)

	sep := []byte("\r\n\r\n")
	idx := bytes.Index(output, sep)
	if idx == -1 {
		resp.SetHeader("Content-Type", "text/html")
		resp.SetBody(output)
		return resp
	}

	headerSection := output[:idx]
	body := output[idx+len(sep):]

	for _, line := range bytes.Split(headerSection, []byte("\r\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}

		colon := bytes.Index(line, []byte(": "))
		if colon == -1 {
			continue
		}

		key := string(line[:colon])
		value := string(line[colon+2:])
		resp.SetHeader(key, value)
	}

	resp.SetBody(body)
	return resp
}
