package utils

import (
	"net/url"
	"path"
	"strings"
)

// SplitURLFilename derives a base name and extension from the last path
// segment of a URL, ignoring query and fragment.
// Example: https://example.com/a/pkg.bin?sig=x -> ("pkg", "bin").
// Either value may come back empty when the URL carries no usable segment.
func SplitURLFilename(rawURL string) (name, ext string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}

	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return "", ""
	}

	dotExt := path.Ext(base)
	name = strings.TrimSuffix(base, dotExt)
	ext = strings.TrimPrefix(dotExt, ".")
	return name, ext
}
