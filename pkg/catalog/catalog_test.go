package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

type fakeInfo struct {
	name  string
	size  int64
	mtime time.Time
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0644 }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// ============================================================================
// Describe
// ============================================================================

func TestDescribe(t *testing.T) {
	dir := t.TempDir()
	mtime := time.UnixMilli(1_700_000_000_123)
	path := writeFile(t, dir, "a.txt", 100, mtime)

	rec, err := Describe(path)
	require.NoError(t, err)

	assert.Equal(t, "a.txt", rec.Name)
	assert.Equal(t, uint64(100), rec.Size)
	assert.Equal(t, uint64(1_700_000_000_123), rec.Timestamp)
	assert.True(t, rec.ModTime().Equal(mtime))
}

func TestDescribe_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	rec, err := Describe(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Equal(t, "sub", rec.Name)
}

func TestDescribe_NotFound(t *testing.T) {
	_, err := Describe(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDescribe_NoFinalElement(t *testing.T) {
	for _, path := range []string{"", "/", ".", ".."} {
		t.Run(path, func(t *testing.T) {
			_, err := Describe(path)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestFromInfo_BeforeEpoch(t *testing.T) {
	_, err := FromInfo("old", fakeInfo{name: "old", mtime: time.Unix(-10, 0)})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFromInfo_AtEpoch(t *testing.T) {
	rec, err := FromInfo("zero", fakeInfo{name: "zero", size: 3, mtime: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.Timestamp)
	assert.Equal(t, uint64(3), rec.Size)
}

// ============================================================================
// List
// ============================================================================

func TestList(t *testing.T) {
	dir := t.TempDir()
	base := time.UnixMilli(1_600_000_000_000)
	writeFile(t, dir, "a", 1, base)
	writeFile(t, dir, "b", 2, base.Add(time.Second))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	writeFile(t, filepath.Join(dir, "nested"), "deep", 3, base)

	records, err := List(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b", "nested"}, names)
}

func TestList_EmptyRoot(t *testing.T) {
	records, err := List(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestList_UnreadableRoot(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestList_SkipsBrokenSymlink(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok", 1, time.Now())
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling")))

	records, err := List(dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Name)
}

func TestList_SkipsNonUTF8Names(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("arbitrary byte names are only guaranteed on linux filesystems")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good", 1, time.Now())
	if err := os.WriteFile(filepath.Join(dir, "bad\xff"), nil, 0644); err != nil {
		t.Skipf("filesystem rejects non-UTF-8 names: %v", err)
	}

	records, err := List(dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].Name)
}

// ============================================================================
// Get and ordering
// ============================================================================

func TestGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.pdf", 42, time.Now())

	rec, err := Get(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.Size)

	_, err = Get(dir, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Get(dir, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSortNewestFirst(t *testing.T) {
	records := []Record{
		{Name: "old", Timestamp: 1},
		{Name: "b-new", Timestamp: 3},
		{Name: "mid", Timestamp: 2},
		{Name: "a-new", Timestamp: 3},
	}

	SortNewestFirst(records)

	var names []string
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"a-new", "b-new", "mid", "old"}, names)
}
