package types

import (
	"errors"
	"fmt"
	"strings"
)

// DownloadRequest describes one file to fetch. Callers build it once and
// treat it as immutable; derived names are computed on demand.
type DownloadRequest struct {
	URL         string
	Name        string // logical base name, no extension
	Extension   string // no leading dot
	Directory   string // single path segment under the storage root
	Version     string // optional extra path segment, may be empty
	TotalBytes  int64  // expected size, 0 when unknown; ETA only
	AccessToken string // optional bearer token
}

// Validate checks the fields the resolver and engine depend on.
// TotalBytes is advisory and never validated against the actual payload.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("request URL is empty")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("request name is empty")
	}
	if strings.TrimSpace(r.Extension) == "" {
		return errors.New("request extension is empty")
	}
	if strings.TrimSpace(r.Directory) == "" {
		return errors.New("request directory is empty")
	}
	return nil
}

// FullName builds the on-disk file name: name[_suffix].extension.
// The suffix stays empty unless the creation policy needs a fresh path.
func (r DownloadRequest) FullName(suffix string) string {
	ext := strings.TrimPrefix(r.Extension, ".")
	if suffix == "" {
		return fmt.Sprintf("%s.%s", r.Name, ext)
	}
	return fmt.Sprintf("%s_%s.%s", r.Name, suffix, ext)
}

// LogicalKey identifies the unit of work for dedupe/replace decisions.
// Two requests with the same name and extension compete for the same
// destination regardless of URL.
func (r DownloadRequest) LogicalKey() string {
	return r.FullName("")
}
