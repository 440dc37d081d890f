package queue

import (
	"net/url"
	"path/filepath"
	"strings"
)

// segments splits a page path into decoded segments. Route parameters
// become underscore-prefixed names: /user/:id → [user _id].
func segments(p string) (parts []string, dynamic bool) {
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		seg = decodeSegment(seg)
		if strings.Contains(seg, ":") {
			seg = strings.ReplaceAll(seg, ":", "_")
			dynamic = true
		}
		parts = append(parts, seg)
	}
	return parts, dynamic
}

var unsafeChars = strings.NewReplacer("/", "%2F", `\`, "%5C")

// decodeSegment URL-decodes one path segment. Results that would change the
// directory structure (".", ".." or separators) stay escaped.
func decodeSegment(seg string) string {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		decoded = seg
	}
	if decoded == "." || decoded == ".." {
		return strings.ReplaceAll(decoded, ".", "%2E")
	}
	return unsafeChars.Replace(decoded)
}

// HTMLOutput is where the page at p is written:
//
//	/           → out/index.html
//	/blog/2     → out/blog/2/index.html
//	/user/:id   → out/user/_id.html
func HTMLOutput(outputDir, p string) string {
	return outputFile(outputDir, p, ".html")
}

// DataOutput is where the query result of the page at p is written, laid
// out like HTMLOutput. It is empty when dataDir is.
func DataOutput(dataDir, p string) string {
	if dataDir == "" {
		return ""
	}
	return outputFile(dataDir, p, ".json")
}

func outputFile(dir, p, ext string) string {
	parts, dynamic := segments(p)
	if dynamic && len(parts) > 0 {
		last := len(parts) - 1
		parts[last] += ext
		return filepath.Join(append([]string{dir}, parts...)...)
	}
	return filepath.Join(append(append([]string{dir}, parts...), "index"+ext)...)
}
