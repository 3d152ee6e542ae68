package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/shelf/internal/action"
)

func p(raw string) action.Path {
	return action.MustParsePath(raw)
}

func strPtr(s string) *string { return &s }

func newTestDisk(t *testing.T, trashDir string) *Disk {
	t.Helper()
	d, err := NewDisk(t.TempDir(), DiskOptions{
		TrashDir: trashDir,
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	return d
}

func TestDiskCreateAndUpsert(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, "")

	require.NoError(t, d.CreateFolder(ctx, p("A")))
	require.NoError(t, d.CreateFolder(ctx, p("A")))
	require.NoError(t, d.UpsertMdFile(ctx, p("A/f.md"), nil))
	require.NoError(t, d.UpsertMdFile(ctx, p("A/f.md"), strPtr("body")))
	require.NoError(t, d.UpsertMdFile(ctx, p("A/f.md"), nil))

	content, err := d.ReadMdFile(ctx, p("A/f.md"))
	require.NoError(t, err)
	assert.Equal(t, "body", content)

	exists, err := d.Exists(ctx, p("A/f.md"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = d.Exists(ctx, p("A/missing.md"))
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(filepath.Join(d.Root(), "A"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), TempPrefix), "temp file left behind: %s", e.Name())
	}
}

func TestDiskCreateFolderNeedsParent(t *testing.T) {
	d := newTestDisk(t, "")
	err := d.CreateFolder(context.Background(), p("A/B"))
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestDiskExistsKindMismatch(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(d.Root(), "A"), []byte("x"), 0o644))
	_, err := d.Exists(ctx, action.Folder(nil, "A"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, d.CreateFolder(ctx, p("A")), ErrAlreadyExists)
}

func TestDiskProcess(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, "")
	upper := action.Pure(strings.ToUpper)

	assert.ErrorIs(t, d.ProcessMdFile(ctx, p("n.md"), upper), ErrNotExist)
	require.NoError(t, d.UpsertMdFile(ctx, p("n.md"), strPtr("abc")))
	require.NoError(t, d.ProcessMdFile(ctx, p("n.md"), upper))
	content, err := d.ReadMdFile(ctx, p("n.md"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", content)
}

func TestDiskRename(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, "")
	require.NoError(t, d.CreateFolder(ctx, p("A")))
	require.NoError(t, d.UpsertMdFile(ctx, p("A/a.md"), strPtr("1")))
	require.NoError(t, d.UpsertMdFile(ctx, p("b.md"), strPtr("2")))

	assert.ErrorIs(t, d.RenameMdFile(ctx, p("b.md"), p("A/a.md")), ErrAlreadyExists)
	assert.ErrorIs(t, d.RenameMdFile(ctx, p("zzz.md"), p("A/z.md")), ErrNotExist)
	require.NoError(t, d.RenameFolder(ctx, p("A"), p("B")))

	files, err := d.ListMdFiles(ctx, p("B"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "B/a.md", files[0].String())
}

func TestDiskTrashMovesIntoTrashDir(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, ".trash")
	require.NoError(t, d.CreateFolder(ctx, p("A")))
	require.NoError(t, d.UpsertMdFile(ctx, p("A/f.md"), strPtr("x")))

	require.NoError(t, d.TrashFolder(ctx, p("A")))
	exists, err := d.Exists(ctx, p("A"))
	require.NoError(t, err)
	assert.False(t, exists)

	moved := filepath.Join(d.Root(), ".trash", "1700000000000000000", "A", "f.md")
	data, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	files, err := d.ListMdFiles(ctx, action.Folder(nil, ".trash"))
	require.NoError(t, err)
	assert.Empty(t, files)

	assert.ErrorIs(t, d.TrashMdFile(ctx, p("A/f.md")), ErrNotExist)
}

func TestDiskTrashRemovesWithoutTrashDir(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, "")
	require.NoError(t, d.CreateFile(ctx, p("img.png")))
	require.NoError(t, d.TrashFile(ctx, p("img.png")))
	_, err := os.Stat(filepath.Join(d.Root(), "img.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskRejectsEscapingPaths(t *testing.T) {
	d := newTestDisk(t, "")
	escaping := action.Path{Kind: action.KindFolder, Parts: []string{".."}, Basename: "outside"}
	assert.ErrorIs(t, d.CreateFolder(context.Background(), escaping), action.ErrInvalidPath)
}
