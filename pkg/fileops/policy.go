package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathMode controls how client supplied names are mapped onto the root.
type PathMode string

const (
	// PathModeConfined canonicalizes names and rejects anything resolving to
	// the root itself or outside of it, including through symlinks.
	PathModeConfined PathMode = "confined"

	// PathModeVerbatim joins names to the root without validation. Absolute
	// names replace the root entirely and ".." segments are honored.
	PathModeVerbatim PathMode = "verbatim"
)

// Valid reports whether m is a known mode.
func (m PathMode) Valid() bool {
	return m == PathModeConfined || m == PathModeVerbatim
}

// CollisionPolicy controls writes that target an existing name.
type CollisionPolicy string

const (
	// CollisionOverwrite replaces the existing entry.
	CollisionOverwrite CollisionPolicy = "overwrite"

	// CollisionReject fails the item with ErrExists.
	CollisionReject CollisionPolicy = "reject"

	// CollisionSuffix writes to the first free "name (n).ext".
	CollisionSuffix CollisionPolicy = "suffix"
)

// maxSuffix bounds the search for a free suffixed name.
const maxSuffix = 1000

// Valid reports whether p is a known policy.
func (p CollisionPolicy) Valid() bool {
	switch p {
	case CollisionOverwrite, CollisionReject, CollisionSuffix:
		return true
	}
	return false
}

// Resolve maps name onto a filesystem path according to the path mode.
func (o *Operations) Resolve(name string) (string, error) {
	if o.mode == PathModeVerbatim {
		if filepath.IsAbs(name) {
			return filepath.Clean(name), nil
		}
		return filepath.Join(o.root, name), nil
	}

	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrOutsideRoot)
	}

	path := filepath.Join(o.root, name)
	if !within(o.root, path) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}

	// A symlinked parent directory could still lead outside the root.
	if parent, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		if parent != o.realRoot && !within(o.realRoot, parent) {
			return "", fmt.Errorf("%w: %q crosses a symlink", ErrOutsideRoot, name)
		}
	}

	// So could a symlink in place of the entry itself, dangling or not.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil || !within(o.realRoot, target) {
			return "", fmt.Errorf("%w: %q links outside the root", ErrOutsideRoot, name)
		}
	}

	return path, nil
}

// within reports whether path is strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// uploadName reduces a client filename to the name used on disk.
func (o *Operations) uploadName(filename string) (string, error) {
	if filename == "" {
		return "", ErrUnnamedUpload
	}
	if o.mode == PathModeVerbatim {
		return filename, nil
	}

	// Browsers on Windows may send full client paths.
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrUnnamedUpload, filename)
	}
	return base, nil
}

// suffixed returns "stem (n)ext" for path.
func suffixed(path string, n int) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// freeName returns the first suffixed variant of path that does not exist.
func freeName(path string) (string, error) {
	for n := 1; n <= maxSuffix; n++ {
		candidate := suffixed(path, n)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free name for %q", ErrExists, filepath.Base(path))
}
