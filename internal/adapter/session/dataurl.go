package session

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const defaultDataMediaType = "text/plain;charset=US-ASCII"

// dataURL is a decoded RFC 2397 data URL
type dataURL struct {
	MediaType string
	Data      []byte
}

// decodeDataURL decodes "data:[<mediatype>][;base64],<data>"
func decodeDataURL(raw string) (*dataURL, error) {
	if len(raw) < 5 || !strings.EqualFold(raw[:5], "data:") {
		return nil, fmt.Errorf("not a data url")
	}
	rest := raw[5:]

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("data url has no ',' separator")
	}
	meta, payload := rest[:comma], rest[comma+1:]

	isBase64 := false
	if i := strings.LastIndexByte(meta, ';'); i >= 0 && strings.EqualFold(strings.TrimSpace(meta[i+1:]), "base64") {
		isBase64 = true
		meta = meta[:i]
	}
	meta = strings.TrimSpace(meta)
	switch {
	case meta == "":
		meta = defaultDataMediaType
	case strings.HasPrefix(meta, ";"):
		meta = "text/plain" + meta
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data url escape: %w", err)
	}

	if !isBase64 {
		return &dataURL{MediaType: meta, Data: []byte(unescaped)}, nil
	}

	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, unescaped)
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
		if err != nil {
			return nil, fmt.Errorf("invalid data url base64: %w", err)
		}
	}
	return &dataURL{MediaType: meta, Data: data}, nil
}
