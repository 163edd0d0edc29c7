// Package webresp builds HTTP/1.1 response messages from a status code,
// headers and body, the way server/response.go builds responses in the
// teacher repository — but returning a mutable, inspectable value instead
// of immediately flattening to bytes, since CGI and the handlers need to
// adjust headers after the status is known.
package webresp

import (
	"bytes"
	"strconv"
	"time"
)

// Response is a mutable HTTP response under construction. The zero value is
// not useful; use New.
type Response struct {
	StatusCode int
	Version    string
	headers    map[string]string
	headerKeys []string
	Body       []byte
}

// New creates a Response with the default headers spec §3 calls for:
// Date, Server, and Connection: keep-alive (the header is emitted but not
// honored — see webloop, which always closes after one response).
func New(statusCode int) *Response {
	r := &Response{
		StatusCode: statusCode,
		Version:    "HTTP/1.1",
		headers:    make(map[string]string),
	}
	r.SetHeader("Date", time.Now().UTC().Format(time.RFC1123))
	r.SetHeader("Server", "webserv/1.0")
	r.SetHeader("Connection", "keep-alive")
	return r
}

// SetHeader sets a response header, preserving first-insertion order for
// headers that are overwritten (iteration order over the underlying map is
// never relied upon by callers; see Build).
func (r *Response) SetHeader(key, value string) {
	if _, exists := r.headers[key]; !exists {
		r.headerKeys = append(r.headerKeys, key)
	}
	r.headers[key] = value
}

// Header returns a previously-set header value.
func (r *Response) Header(key string) string { return r.headers[key] }

// SetBody sets the response body and updates Content-Length to match.
func (r *Response) SetBody(body []byte) {
	r.Body = body
	r.SetHeader("Content-Length", strconv.Itoa(len(body)))
}

// Build serializes the response to wire format: status line, headers in
// insertion order, a blank line, then the body (omitted entirely when
// empty).
func (r *Response) Build() []byte {
	var buf bytes.Buffer

	buf.WriteString(r.Version)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(r.StatusCode))
	buf.WriteByte(' ')
	buf.WriteString(ReasonPhrase(r.StatusCode))
	buf.WriteString("\r\n")

	for _, key := range r.headerKeys {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(r.headers[key])
		buf.WriteString("\r\n")
	}

	buf.WriteString("\r\n")

	if len(r.Body) > 0 {
		buf.Write(r.Body)
	}

	return buf.Bytes()
}

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	411: "Length Required",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// ReasonPhrase returns the IANA standard reason phrase for code, or
// "Unknown Status" if code is not one of the standard codes listed in
// spec §4.2.
func ReasonPhrase(code int) string {
	if phrase, ok := reasonPhrases[code]; ok {
		return phrase
	}
	return "Unknown Status"
}
