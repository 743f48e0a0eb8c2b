package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/marmos91/assetfiles/pkg/catalog"
)

// ============================================================================
// Create
// ============================================================================

// CreateOne writes a single upload into the root and describes the result.
func (o *Operations) CreateOne(u Upload) (catalog.Record, error) {
	name, err := o.uploadName(u.Filename)
	if err != nil {
		return catalog.Record{}, err
	}
	path, err := o.Resolve(name)
	if err != nil {
		return catalog.Record{}, err
	}
	if u.Open == nil {
		return catalog.Record{}, fmt.Errorf("upload %q has no content", u.Filename)
	}

	src, err := u.Open()
	if err != nil {
		return catalog.Record{}, fmt.Errorf("open upload %q: %w", u.Filename, err)
	}
	defer src.Close()

	dst, path, err := o.openTarget(path)
	if err != nil {
		return catalog.Record{}, err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return catalog.Record{}, fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return catalog.Record{}, fmt.Errorf("close %s: %w", path, err)
	}

	return catalog.Describe(path)
}

// CreateMany writes every upload and returns the records of those that
// succeeded, in input order.
func (o *Operations) CreateMany(uploads []Upload) []catalog.Record {
	return collect(uploads, o.CreateOne, func(u Upload, err error) {
		o.skip("create", u.Filename, err)
	})
}

// openTarget opens path for writing according to the collision policy. It
// returns the path actually opened, which differs from path under the suffix
// policy.
func (o *Operations) openTarget(path string) (*os.File, string, error) {
	switch o.collision {
	case CollisionReject:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrExists, path)
		}
		return f, path, err

	case CollisionSuffix:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			return f, path, err
		}
		for n := 1; n <= maxSuffix; n++ {
			candidate := suffixed(path, n)
			f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return f, candidate, err
		}
		return nil, "", fmt.Errorf("%w: no free name for %s", ErrExists, path)

	default:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		return f, path, err
	}
}

// ============================================================================
// Rename
// ============================================================================

// RenameOne moves r.From to r.To and describes the entry at its new name.
func (o *Operations) RenameOne(r Rename) (catalog.Record, error) {
	from, err := o.Resolve(r.From)
	if err != nil {
		return catalog.Record{}, err
	}
	to, err := o.Resolve(r.To)
	if err != nil {
		return catalog.Record{}, err
	}

	if _, err := os.Lstat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return catalog.Record{}, fmt.Errorf("%w: %s", ErrNotFound, r.From)
		}
		return catalog.Record{}, fmt.Errorf("stat %s: %w", from, err)
	}

	if from != to {
		if _, err := os.Lstat(to); err == nil {
			switch o.collision {
			case CollisionReject:
				return catalog.Record{}, fmt.Errorf("%w: %s", ErrExists, r.To)
			case CollisionSuffix:
				if to, err = freeName(to); err != nil {
					return catalog.Record{}, err
				}
			}
		}
	}

	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return catalog.Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return catalog.Record{}, fmt.Errorf("rename: %w", err)
	}

	return catalog.Describe(to)
}

// RenameMany applies every rename in order and returns the records of the
// successful ones. Later items observe the effects of earlier ones.
func (o *Operations) RenameMany(renames []Rename) []catalog.Record {
	return collect(renames, o.RenameOne, func(r Rename, err error) {
		o.skip("rename", r.From+" -> "+r.To, err)
	})
}

// ============================================================================
// Delete
// ============================================================================

// DeleteOne removes a regular file, or a directory with all its contents, and
// returns name. Anything else, including a missing entry, is ErrNotFound.
func (o *Operations) DeleteOne(name string) (string, error) {
	path, err := o.Resolve(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	switch {
	case info.Mode().IsRegular():
		err = os.Remove(path)
	case info.IsDir():
		err = os.RemoveAll(path)
	default:
		return "", fmt.Errorf("%w: %s is neither a file nor a directory", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("remove %s: %w", path, err)
	}

	return name, nil
}

// DeleteMany removes every named entry and returns the names that were
// removed, in input order.
func (o *Operations) DeleteMany(names []string) []string {
	return collect(names, o.DeleteOne, func(name string, err error) {
		o.skip("delete", name, err)
	})
}
