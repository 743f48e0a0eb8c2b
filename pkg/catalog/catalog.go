// Package catalog reads metadata of the entries in the managed root.
//
// The filesystem is the only source of truth: nothing here is cached or
// persisted, every call stats the entries it reports.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when the requested entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidName is returned when an entry cannot be described: it has no
	// final path element, its name is not valid UTF-8, or its modification time
	// precedes the Unix epoch.
	ErrInvalidName = errors.New("invalid entry")
)

// Record is the metadata reported for one entry.
type Record struct {
	Name string `json:"name"`

	// Size is the length in bytes as reported by the filesystem.
	Size uint64 `json:"size"`

	// Timestamp is the modification time in milliseconds since the Unix epoch.
	Timestamp uint64 `json:"timestamp"`
}

// ModTime returns the timestamp as a time.Time.
func (r Record) ModTime() time.Time {
	return time.UnixMilli(int64(r.Timestamp))
}

// Describe stats the entry at path, following symlinks.
func Describe(path string) (Record, error) {
	name := filepath.Base(path)
	if path == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return Record{}, fmt.Errorf("%w: %q has no final element", ErrInvalidName, path)
	}
	if !utf8.ValidString(name) {
		return Record{}, fmt.Errorf("%w: name of %q is not valid UTF-8", ErrInvalidName, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return Record{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return FromInfo(name, info)
}

// FromInfo builds a Record from already obtained file info.
func FromInfo(name string, info fs.FileInfo) (Record, error) {
	mtime := info.ModTime()
	if mtime.Before(time.Unix(0, 0)) {
		return Record{}, fmt.Errorf("%w: %q modified before the epoch", ErrInvalidName, name)
	}

	size := info.Size()
	if size < 0 {
		size = 0
	}

	return Record{
		Name:      name,
		Size:      uint64(size),
		Timestamp: uint64(mtime.UnixMilli()),
	}, nil
}

// List describes the direct children of root.
//
// Children that cannot be described are left out. An error is returned only
// when root itself cannot be read.
func List(root string) ([]Record, error) {
	dir, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}
	defer dir.Close()

	// ReadDir returns whatever it managed to read alongside an error, so a
	// partially readable directory still produces a listing.
	entries, err := dir.ReadDir(-1)
	if err != nil && len(entries) == 0 {
		return nil, fmt.Errorf("read root: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := Describe(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get describes the single entry name directly under root.
func Get(root, name string) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("%w: empty name", ErrNotFound)
	}
	return Describe(filepath.Join(root, name))
}

// SortNewestFirst orders records by descending timestamp. Records with equal
// timestamps are ordered by name.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].Name < records[j].Name
	})
}
