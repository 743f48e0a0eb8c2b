// Package fileops performs the mutating operations on the managed root:
// uploads, renames and deletes, each available for a single item or as a
// batch.
//
// Batches follow a partial-success contract. Every item is attempted
// independently and the result holds only the items that succeeded, in input
// order. Failed items are dropped from the result without an error; they are
// reported to the SkipFunc (logged at DEBUG by default) for diagnostics.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/catalog"
)

var (
	// ErrNotFound is returned when the target of an operation does not exist.
	// It is the same sentinel as catalog.ErrNotFound.
	ErrNotFound = catalog.ErrNotFound

	// ErrOutsideRoot is returned in confined mode when a name resolves to the
	// root itself or to a location outside it.
	ErrOutsideRoot = errors.New("path escapes managed root")

	// ErrExists is returned by the reject collision policy when the target
	// already exists.
	ErrExists = errors.New("target already exists")

	// ErrUnnamedUpload is returned for uploads that carry no usable filename.
	ErrUnnamedUpload = errors.New("upload has no filename")
)

// Upload is one file received for creation.
type Upload struct {
	// Filename is the client supplied name.
	Filename string

	// Open returns the upload content. The caller of Open closes the reader.
	Open func() (io.ReadCloser, error)
}

// Rename moves the entry From to To, both relative to the managed root.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SkipFunc observes batch items that were dropped from a result.
type SkipFunc func(op, item string, err error)

// Operations executes file operations inside one managed root.
//
// Operations holds no mutable state. Concurrent operations on the same names
// race at the filesystem level exactly as concurrent processes would.
type Operations struct {
	root      string
	realRoot  string
	mode      PathMode
	collision CollisionPolicy
	skip      SkipFunc
}

// Option configures Operations.
type Option func(*Operations)

// WithPathMode sets how names are mapped onto the root.
func WithPathMode(mode PathMode) Option {
	return func(o *Operations) {
		o.mode = mode
	}
}

// WithCollisionPolicy sets what happens when a write targets an existing name.
func WithCollisionPolicy(policy CollisionPolicy) Option {
	return func(o *Operations) {
		o.collision = policy
	}
}

// WithSkipHook replaces the function notified about dropped batch items.
func WithSkipHook(fn SkipFunc) Option {
	return func(o *Operations) {
		if fn != nil {
			o.skip = fn
		}
	}
}

// New creates Operations rooted at root.
//
// Defaults: confined path mode and the overwrite collision policy.
func New(root string, opts ...Option) (*Operations, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	o := &Operations{
		root:      abs,
		realRoot:  abs,
		mode:      PathModeConfined,
		collision: CollisionOverwrite,
		skip:      logSkip,
	}
	for _, opt := range opts {
		opt(o)
	}

	if !o.mode.Valid() {
		return nil, fmt.Errorf("unknown path mode %q", o.mode)
	}
	if !o.collision.Valid() {
		return nil, fmt.Errorf("unknown collision policy %q", o.collision)
	}

	// The root may not exist yet; symlink checks then compare against the
	// lexical path.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		o.realRoot = real
	}

	return o, nil
}

func logSkip(op, item string, err error) {
	logger.Debug("%s: skipped %q: %v", op, item, err)
}

// Root returns the absolute managed root.
func (o *Operations) Root() string {
	return o.root
}

// PathMode returns the configured path mode.
func (o *Operations) PathMode() PathMode {
	return o.mode
}

// CollisionPolicy returns the configured collision policy.
func (o *Operations) CollisionPolicy() CollisionPolicy {
	return o.collision
}

// List describes every readable entry directly under the root.
func (o *Operations) List() ([]catalog.Record, error) {
	return catalog.List(o.root)
}

// Get describes a single entry.
func (o *Operations) Get(name string) (catalog.Record, error) {
	path, err := o.Resolve(name)
	if err != nil {
		return catalog.Record{}, err
	}
	return catalog.Describe(path)
}

// collect applies fn to every item and keeps the successful results in input
// order. Failures are passed to skip and otherwise discarded.
func collect[T, R any](items []T, fn func(T) (R, error), skip func(T, error)) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		r, err := fn(item)
		if err != nil {
			skip(item, err)
			continue
		}
		out = append(out, r)
	}
	return out
}
