package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leafo/shelf/internal/action"
)

// TempPrefix starts the name of every temporary file the disk store writes.
// Watchers skip these names.
const TempPrefix = ".shelf-tmp-"

// DiskOptions configure a Disk store.
type DiskOptions struct {
	// TrashDir is a root relative directory trashed paths are moved into.
	// Empty removes them instead.
	TrashDir string
	Now      func() time.Time
}

// Disk is a Store backed by a directory on the local filesystem.
type Disk struct {
	root     string
	trashDir string
	now      func() time.Time
}

// NewDisk prepares a Disk store rooted at root, creating the directory when
// missing.
func NewDisk(root string, opts DiskOptions) (*Disk, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Disk{
		root:     abs,
		trashDir: action.NormalizeRaw(opts.TrashDir),
		now:      now,
	}, nil
}

// Root returns the absolute store root.
func (d *Disk) Root() string {
	return d.root
}

// TrashDir returns the root relative trash directory, if any.
func (d *Disk) TrashDir() string {
	return d.trashDir
}

func (d *Disk) resolve(p action.Path) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(p.String()))
	rel, err := filepath.Rel(d.root, full)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s escapes the store root", action.ErrInvalidPath, p)
	}
	return full, nil
}

func (d *Disk) Exists(_ context.Context, p action.Path) (bool, error) {
	full, err := d.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() != (p.Kind == action.KindFolder) {
		return false, fmt.Errorf("%w: %s is occupied by a different kind of entry", ErrAlreadyExists, p)
	}
	return true, nil
}

func (d *Disk) CreateFolder(_ context.Context, p action.Path) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			if info, statErr := os.Stat(full); statErr == nil && info.IsDir() {
				return nil
			}
			return fmt.Errorf("%w: a file occupies %s", ErrAlreadyExists, p)
		}
		return mapNotExist(err, p)
	}
	return nil
}

func (d *Disk) CreateFile(_ context.Context, p action.Path) error {
	return d.createEmpty(p)
}

func (d *Disk) UpsertMdFile(_ context.Context, p action.Path, content *string) error {
	if content == nil {
		return d.createEmpty(p)
	}
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(full, []byte(*content), 0o644); err != nil {
		return mapNotExist(err, p)
	}
	return nil
}

// ProcessMdFile rewrites the file in place so the store only reports a
// content change, never a structural one.
func (d *Disk) ProcessMdFile(ctx context.Context, p action.Path, transform action.Transform) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	current, err := os.ReadFile(full)
	if err != nil {
		return mapNotExist(err, p)
	}
	next, err := transform.Apply(ctx, string(current))
	if err != nil {
		return fmt.Errorf("transform %s: %w", p, err)
	}
	if next == string(current) {
		return nil
	}
	return os.WriteFile(full, []byte(next), 0o644)
}

func (d *Disk) RenameFolder(_ context.Context, from, to action.Path) error {
	return d.rename(from, to)
}

func (d *Disk) RenameFile(_ context.Context, from, to action.Path) error {
	return d.rename(from, to)
}

func (d *Disk) RenameMdFile(_ context.Context, from, to action.Path) error {
	return d.rename(from, to)
}

func (d *Disk) TrashFolder(_ context.Context, p action.Path) error {
	return d.trash(p)
}

func (d *Disk) TrashFile(_ context.Context, p action.Path) error {
	return d.trash(p)
}

func (d *Disk) TrashMdFile(_ context.Context, p action.Path) error {
	return d.trash(p)
}

func (d *Disk) ReadMdFile(_ context.Context, p action.Path) (string, error) {
	full, err := d.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", mapNotExist(err, p)
	}
	return string(data), nil
}

// ListMdFiles walks folder and returns every markdown file below it, sorted.
func (d *Disk) ListMdFiles(_ context.Context, folder action.Path) ([]action.Path, error) {
	start, err := d.resolve(folder)
	if err != nil {
		return nil, err
	}
	var files []action.Path
	err = filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if entry.IsDir() {
			if d.trashDir != "" && rel == d.trashDir {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), TempPrefix) || !strings.EqualFold(filepath.Ext(rel), ".md") {
			return nil
		}
		p, parseErr := action.ParsePath(rel)
		if parseErr != nil {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, mapNotExist(err, folder)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].String() < files[j].String() })
	return files, nil
}

func (d *Disk) createEmpty(p action.Path) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return mapNotExist(err, p)
	}
	return f.Close()
}

func (d *Disk) rename(from, to action.Path) error {
	src, err := d.resolve(from)
	if err != nil {
		return err
	}
	dst, err := d.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(src); err != nil {
		return mapNotExist(err, from)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, to)
	}
	if err := os.Rename(src, dst); err != nil {
		return mapNotExist(err, to)
	}
	return nil
}

func (d *Disk) trash(p action.Path) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(full); err != nil {
		return mapNotExist(err, p)
	}
	if d.trashDir == "" {
		return os.RemoveAll(full)
	}
	stamp := strconv.FormatInt(d.now().UnixNano(), 10)
	dst := filepath.Join(d.root, filepath.FromSlash(d.trashDir), stamp, filepath.FromSlash(p.String()))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare trash for %s: %w", p, err)
	}
	return os.Rename(full, dst)
}

func mapNotExist(err error, p action.Path) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return err
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
