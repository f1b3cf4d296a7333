package engine

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/utils"
)

const probeAttempts = 3

// ProbeResult describes what a preflight request learned about an origin.
type ProbeResult struct {
	Size          int64
	AcceptsRanges bool
	ContentType   string
	Filename      string
}

// Probe sends a GET with "Range: bytes=0-0" to learn the total size and
// whether the origin honors ranges, without pulling the body. A 206 means
// resume will work; a 200 means any restart starts from zero.
func (t *Transfer) Probe(ctx context.Context, rawurl, accessToken string) (*ProbeResult, error) {
	var resp *http.Response
	var err error

	for i := 0; i < probeAttempts; i++ {
		if i > 0 {
			t.log.Debug("retrying probe", zap.String("url", rawurl), zap.Int("attempt", i+1))
			time.Sleep(time.Second)
		}

		probeCtx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
		defer cancel()

		var req *http.Request
		req, err = http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
		if err != nil {
			return nil, &TransportError{URL: rawurl, Err: err}
		}
		req.Header.Set("Range", "bytes=0-0")
		req.Header.Set("User-Agent", t.runtime.GetUserAgent())
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}

		resp, err = t.client.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, &TransportError{URL: rawurl, Err: fmt.Errorf("probe failed: %w", err)}
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	result := &ProbeResult{ContentType: resp.Header.Get("Content-Type")}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.AcceptsRanges = true
		if _, _, total, crErr := parseContentRange(resp.Header.Get("Content-Range")); crErr == nil && total > 0 {
			result.Size = total
		}

	case http.StatusOK:
		result.AcceptsRanges = false
		if resp.ContentLength >= 0 {
			result.Size = resp.ContentLength
		}

	default:
		return nil, &ProtocolError{URL: rawurl, Status: resp.StatusCode}
	}

	result.Filename = filenameFrom(resp, rawurl)

	t.log.Debug("probe complete",
		zap.String("url", rawurl),
		zap.Int64("size", result.Size),
		zap.Bool("ranges", result.AcceptsRanges),
		zap.String("filename", result.Filename))

	return result, nil
}

// filenameFrom prefers the Content-Disposition filename over the last URL
// path segment. Directory components are stripped either way.
func filenameFrom(resp *http.Response, rawurl string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}

	name, ext := utils.SplitURLFilename(rawurl)
	if name == "" {
		return ""
	}
	if ext == "" {
		return name
	}
	return name + "." + ext
}
