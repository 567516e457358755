package domain

import (
	"fmt"
	"strings"
)

// MediaType selects the kind of scene an editing session works on.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ParseMediaType converts a host supplied string into a MediaType.
func ParseMediaType(s string) (MediaType, error) {
	switch MediaType(strings.ToLower(strings.TrimSpace(s))) {
	case MediaImage:
		return MediaImage, nil
	case MediaVideo:
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("unknown media type %q", s)
	}
}

// Valid reports whether m is one of the supported media types.
func (m MediaType) Valid() bool {
	return m == MediaImage || m == MediaVideo
}

func (m MediaType) String() string {
	return string(m)
}
