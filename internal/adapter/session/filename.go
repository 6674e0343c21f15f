package session

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const fallbackFileName = "download"

// suggestedFileName picks a name from Content-Disposition, then the URL path
func suggestedFileName(resp *http.Response, u *url.URL) string {
	if resp != nil {
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil {
				if name := strings.TrimSpace(params["filename"]); name != "" {
					return name
				}
			}
		}
	}
	if u != nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			if unescaped, err := url.PathUnescape(base); err == nil {
				return unescaped
			}
			return base
		}
	}
	return fallbackFileName
}

// dataFileName names a data URL payload by its media type extension
func dataFileName(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return fallbackFileName
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return fallbackFileName + exts[0]
	}
	return fallbackFileName
}
