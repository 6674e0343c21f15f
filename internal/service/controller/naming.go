package controller

import (
	"net/url"
	"strings"
)

// downloadFileName returns the file name hint for u, or "" to let the
// session manager choose. Only data URLs get a hint, "<type>.<subtype>"
// from their media type.
func downloadFileName(u *url.URL) string {
	if u == nil || !strings.EqualFold(u.Scheme, "data") {
		return ""
	}

	body := u.Opaque
	if body == "" {
		body = u.Path
	}
	if i := strings.IndexAny(body, ";,"); i >= 0 {
		body = body[:i]
	}

	typ, subtype, ok := strings.Cut(strings.TrimSpace(body), "/")
	if !ok || typ == "" || subtype == "" {
		return ""
	}
	return typ + "." + subtype
}
