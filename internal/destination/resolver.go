// Package destination maps download requests onto concrete filesystem
// paths according to the creation policy.
package destination

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/logging"
)

// StorageError reports a filesystem failure while resolving or preparing
// a destination. Fatal for the attempt; never retried here.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Resolver computes write targets under a fixed storage root.
type Resolver struct {
	root   string
	now    func() time.Time
	logger *zap.Logger
}

// NewResolver creates a resolver rooted at root. A nil logger is allowed.
func NewResolver(root string, logger *zap.Logger) *Resolver {
	return &Resolver{
		root:   root,
		now:    time.Now,
		logger: logging.Or(logger),
	}
}

// Resolve maps a request and policy to a concrete path plus the byte
// offset to resume from. It creates the directory tree as needed but
// opens no streams and performs no network calls. The result is valid
// for one attempt only: Append offsets reflect the file length at call
// time.
func (r *Resolver) Resolve(req types.DownloadRequest, policy types.CreationPolicy) (types.Destination, error) {
	if err := req.Validate(); err != nil {
		return types.Destination{}, &StorageError{Op: "validate", Path: r.root, Err: err}
	}
	if err := validSegment(req.Directory); err != nil {
		return types.Destination{}, &StorageError{Op: "validate", Path: req.Directory, Err: err}
	}

	dir := filepath.Join(r.root, req.Directory)
	if req.Version != "" {
		if err := validSegment(req.Version); err != nil {
			return types.Destination{}, &StorageError{Op: "validate", Path: req.Version, Err: err}
		}
		dir = filepath.Join(dir, req.Version)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Destination{}, &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	path := filepath.Join(dir, req.FullName(""))
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.Destination{Path: path, Offset: 0}, nil
	}
	if err != nil {
		return types.Destination{}, &StorageError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return types.Destination{}, &StorageError{Op: "stat", Path: path, Err: errors.New("destination is a directory")}
	}

	switch policy {
	case types.Append:
		r.logger.Debug("resuming existing file",
			zap.String("path", path), zap.Int64("offset", info.Size()))
		return types.Destination{Path: path, Offset: info.Size()}, nil

	case types.CreateNew:
		fresh, err := r.freshPath(dir, req)
		if err != nil {
			return types.Destination{}, err
		}
		return types.Destination{Path: fresh, Offset: 0}, nil

	default: // Overwrite
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return types.Destination{}, &StorageError{Op: "remove", Path: path, Err: err}
		}
		return types.Destination{Path: path, Offset: 0}, nil
	}
}

// freshPath derives a suffixed name that does not collide with an
// existing file. A fully exhausted probe falls back to overwrite
// semantics on the last candidate instead of failing the attempt.
func (r *Resolver) freshPath(dir string, req types.DownloadRequest) (string, error) {
	ts := r.now().UnixNano()

	var candidate string
	for i := 0; i < 10; i++ {
		candidate = filepath.Join(dir, req.FullName(strconv.FormatInt(ts+int64(i), 10)))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}

	if err := os.Remove(candidate); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", &StorageError{Op: "remove", Path: candidate, Err: err}
	}
	return candidate, nil
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." {
		return fmt.Errorf("invalid path segment %q", s)
	}
	if strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("path segment %q contains a separator", s)
	}
	return nil
}
