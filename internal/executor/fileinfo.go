package executor

import (
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// FileInfo is the metadata the executor derives from a response's headers
// and effective URL, per spec §4.3.1.
type FileInfo struct {
	FileName      string
	ContentLength *int64
	ContentType   *string
	Resumable     bool
}

// mimeExtensions is a small, deterministic content-type → extension table.
// The standard library's mime.ExtensionsByType depends on the host's
// registered MIME database and isn't guaranteed to return ".htm" for
// "text/html" (it may return no extensions at all on a minimal system), so
// the common cases are pinned here and the stdlib is consulted only as a
// fallback for anything not listed.
var mimeExtensions = map[string]string{
	"text/html":               ".htm",
	"text/plain":               ".txt",
	"text/css":                 ".css",
	"text/csv":                 ".csv",
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"application/json":         ".json",
	"application/xml":          ".xml",
	"application/octet-stream": "",
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"video/mp4":                ".mp4",
	"audio/mpeg":               ".mp3",
}

func extensionForMIME(contentType string) (string, bool) {
	if ext, ok := mimeExtensions[contentType]; ok {
		return ext, ext != ""
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0], true
	}
	return "", false
}

// DeriveFileInfo computes a FileInfo from response headers and the final
// effective URL (after redirects), per spec §4.3.1.
func DeriveFileInfo(header http.Header, effectiveURL string) FileInfo {
	info := FileInfo{}

	if ct := header.Get("Content-Type"); ct != "" {
		seg := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		info.ContentType = &seg
	}

	info.Resumable = strings.ToLower(header.Get("Accept-Ranges")) == "bytes"

	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.ContentLength = &n
		}
	}

	fileName, hasExt := fileNameFromDisposition(header.Get("Content-Disposition"))
	if fileName == "" {
		fileName, hasExt = fileNameFromURL(effectiveURL)
	}

	if !hasExt && info.ContentType != nil {
		if ext, ok := extensionForMIME(*info.ContentType); ok {
			fileName += ext
		}
	}

	info.FileName = fileName
	return info
}

// fileNameFromDisposition implements step 1 of §4.3.1: a quoted
// filename="..." value takes priority; otherwise, an unquoted filename=
// takes the remainder up to (excluding) the header's final character.
func fileNameFromDisposition(cd string) (string, bool) {
	if cd == "" {
		return "", false
	}

	const quotedMarker = `filename="`
	if idx := strings.Index(cd, quotedMarker); idx != -1 {
		rest := cd[idx+len(quotedMarker):]
		if end := strings.Index(rest, `"`); end != -1 {
			name := rest[:end]
			return name, filepath.Ext(name) != ""
		}
	}

	const marker = "filename="
	if idx := strings.Index(cd, marker); idx != -1 {
		start := idx + len(marker)
		if start < len(cd)-1 {
			name := cd[start : len(cd)-1]
			return name, filepath.Ext(name) != ""
		}
	}

	return "", false
}

// fileNameFromURL implements step 2 of §4.3.1: the last non-empty,
// percent-decoded path segment of the effective URL, or "download" if none.
func fileNameFromURL(effectiveURL string) (string, bool) {
	u, err := url.Parse(effectiveURL)
	if err != nil {
		return "download", false
	}

	segments := strings.Split(u.Path, "/")
	var last string
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			last = segments[i]
			break
		}
	}
	if last == "" {
		return "download", false
	}

	decoded, err := url.PathUnescape(last)
	if err != nil {
		decoded = last
	}
	return decoded, filepath.Ext(decoded) != ""
}
