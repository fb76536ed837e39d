// Title sanitization for file names and URL path segments.
// The same function is used by the exporter when it writes pages and
// attachments and by the rewrite passes when they reference them, so a file
// saved under name X is always linked as X.
package main

import (
	"net/url"
	"path"
	"strings"
)

// pathSeparators are replaced with "_" in every sanitized title.
var pathSeparators = []string{"/", `\`}

// sanitizeFilename turns an arbitrary page or attachment title into a single
// safe path segment: no "/" or "\", runs of whitespace collapsed to one
// space, and never "." or "..". Applying it twice is a no-op.
func sanitizeFilename(title string) string {
	name := title
	for _, sep := range pathSeparators {
		if strings.Contains(name, sep) {
			logf("Dangerous title: %q, %q found, replacing it with \"_\"", title, sep)
			name = strings.ReplaceAll(name, sep, "_")
		}
	}

	name = strings.Join(strings.Fields(name), " ")

	if name == "." || name == ".." {
		logf("Dangerous title: %q, replacing it with %q", title, strings.Repeat("_", len(name)))
		name = strings.Repeat("_", len(name))
	}
	return name
}

// attachmentDir is the directory, relative to a page file, that holds the
// page's attachments.
const attachmentDir = "attachments"

// attachmentPath returns the relative reference for an attachment name.
// The name is sanitized here so callers cannot skip it.
func attachmentPath(name string) string {
	return attachmentDir + "/" + sanitizeFilename(name)
}

// attachmentNameFromURL extracts an attachment file name from a download URL
// such as ".../download/attachments/123/My%20File.png?version=1".
// Returns "" when the URL has no usable last segment.
func attachmentNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := u.EscapedPath()
	if p == "" {
		return ""
	}
	last := path.Base(p)
	if last == "." || last == "/" {
		return ""
	}
	name, err := url.PathUnescape(last)
	if err != nil {
		return ""
	}
	return name
}

// attachmentNameFromPreview extracts an attachment name from a preview link
// such as "/pages/viewpage.action?pageId=1&preview=/1/2/My+File.png".
// The query value is percent-decoded with "+" read as a space.
func attachmentNameFromPreview(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil && len(q) == 0 {
		return ""
	}
	preview := q.Get("preview")
	if preview == "" {
		return ""
	}
	if i := strings.LastIndex(preview, "/"); i >= 0 {
		preview = preview[i+1:]
	}
	return preview
}
