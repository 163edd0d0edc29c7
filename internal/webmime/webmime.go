// Package webmime maps a file extension to a Content-Type value for static
// file responses, per spec §4.4 step 8. The table is deliberately small and
// deliberately preserves the original implementation's quirk of mapping
// ".txt" to the literal string "txt" rather than "text/plain" — spec.md
// names the MIME-type lookup table an external collaborator, so fidelity to
// the original behavior matters more than "fixing" it here.
package webmime

import "strings"

var extensionTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"txt":  "txt",
}

const defaultType = "application/octet-stream"

// ContentTypeForPath returns the Content-Type to use for a static file at
// path, based on its extension.
func ContentTypeForPath(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot == -1 {
		return defaultType
	}

	ext := path[dot+1:]
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}

	return defaultType
}
