// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leafo/shelf/internal/action"
	"github.com/leafo/shelf/internal/store"
)

// Memory is an in-process store.Store. Every create requires its parent
// folder to exist, which makes ordering mistakes visible.
type Memory struct {
	mu      sync.Mutex
	folders map[string]struct{}
	files   map[string]string
	failOn  map[string]error
	log     []string
}

var _ store.Store = (*Memory)(nil)

// NewMemory returns a store seeded with raw paths. Entries ending in a
// known extension become empty files; the rest become folders. Missing
// ancestors are created.
func NewMemory(paths ...string) *Memory {
	m := &Memory{
		folders: make(map[string]struct{}),
		files:   make(map[string]string),
		failOn:  make(map[string]error),
	}
	for _, raw := range paths {
		p := action.MustParsePath(raw)
		for _, ancestor := range p.Ancestors() {
			m.folders[ancestor.String()] = struct{}{}
		}
		if p.Kind == action.KindFolder {
			m.folders[p.String()] = struct{}{}
		} else {
			m.files[p.String()] = ""
		}
	}
	return m
}

// FailOn makes every action touching raw return err.
func (m *Memory) FailOn(raw string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[action.NormalizeRaw(raw)] = err
}

// Log returns the applied operations in order.
func (m *Memory) Log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

// Content returns a file's content.
func (m *Memory) Content(raw string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[action.NormalizeRaw(raw)]
	return content, ok
}

// Paths returns every folder and file, sorted.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.folders)+len(m.files))
	for k := range m.folders {
		out = append(out, k)
	}
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Exists(_ context.Context, p action.Path) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[p.String()]; err != nil {
		return false, err
	}
	return m.existsLocked(p), nil
}

func (m *Memory) CreateFolder(_ context.Context, p action.Path) error {
	return m.do("create_folder", p, func() error {
		if _, ok := m.folders[p.String()]; ok {
			return nil
		}
		if err := m.requireParentLocked(p); err != nil {
			return err
		}
		if _, ok := m.files[p.String()]; ok {
			return fmt.Errorf("%w: a file occupies %s", store.ErrAlreadyExists, p)
		}
		m.folders[p.String()] = struct{}{}
		return nil
	})
}

func (m *Memory) CreateFile(_ context.Context, p action.Path) error {
	return m.do("create_file", p, func() error { return m.ensureFileLocked(p) })
}

func (m *Memory) UpsertMdFile(_ context.Context, p action.Path, content *string) error {
	return m.do("upsert_md_file", p, func() error {
		if content == nil {
			return m.ensureFileLocked(p)
		}
		if err := m.requireParentLocked(p); err != nil {
			return err
		}
		m.files[p.String()] = *content
		return nil
	})
}

func (m *Memory) ProcessMdFile(ctx context.Context, p action.Path, transform action.Transform) error {
	return m.do("process_md_file", p, func() error {
		current, ok := m.files[p.String()]
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrNotExist, p)
		}
		next, err := transform.Apply(ctx, current)
		if err != nil {
			return fmt.Errorf("transform %s: %w", p, err)
		}
		m.files[p.String()] = next
		return nil
	})
}

func (m *Memory) RenameFolder(_ context.Context, from, to action.Path) error {
	return m.do("rename_folder", from, func() error {
		if _, ok := m.folders[from.String()]; !ok {
			return fmt.Errorf("%w: %s", store.ErrNotExist, from)
		}
		if err := m.requireFreeLocked(to); err != nil {
			return err
		}
		src := from.String()
		dst := to.String()
		var folders []string
		for k := range m.folders {
			if k == src || strings.HasPrefix(k, src+"/") {
				folders = append(folders, k)
			}
		}
		moved := make(map[string]string)
		for k, v := range m.files {
			if strings.HasPrefix(k, src+"/") {
				moved[k] = v
			}
		}
		for _, k := range folders {
			delete(m.folders, k)
			m.folders[dst+strings.TrimPrefix(k, src)] = struct{}{}
		}
		for k, v := range moved {
			delete(m.files, k)
			m.files[dst+strings.TrimPrefix(k, src)] = v
		}
		return nil
	})
}

func (m *Memory) RenameFile(_ context.Context, from, to action.Path) error {
	return m.do("rename_file", from, func() error { return m.renameFileLocked(from, to) })
}

func (m *Memory) RenameMdFile(_ context.Context, from, to action.Path) error {
	return m.do("rename_md_file", from, func() error { return m.renameFileLocked(from, to) })
}

func (m *Memory) TrashFolder(_ context.Context, p action.Path) error {
	return m.do("trash_folder", p, func() error {
		key := p.String()
		if _, ok := m.folders[key]; !ok {
			return fmt.Errorf("%w: %s", store.ErrNotExist, p)
		}
		for k := range m.folders {
			if k == key || strings.HasPrefix(k, key+"/") {
				delete(m.folders, k)
			}
		}
		for k := range m.files {
			if strings.HasPrefix(k, key+"/") {
				delete(m.files, k)
			}
		}
		return nil
	})
}

func (m *Memory) TrashFile(_ context.Context, p action.Path) error {
	return m.do("trash_file", p, func() error { return m.removeFileLocked(p) })
}

func (m *Memory) TrashMdFile(_ context.Context, p action.Path) error {
	return m.do("trash_md_file", p, func() error { return m.removeFileLocked(p) })
}

func (m *Memory) ReadMdFile(_ context.Context, p action.Path) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[p.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrNotExist, p)
	}
	return content, nil
}

func (m *Memory) ListMdFiles(_ context.Context, folder action.Path) ([]action.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := folder.String() + "/"
	var out []action.Path
	for k := range m.files {
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, "."+action.MdExtension) {
			continue
		}
		p, err := action.ParsePath(k)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *Memory) do(op string, p action.Path, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[p.String()]; err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	m.log = append(m.log, op+" "+p.String())
	return nil
}

func (m *Memory) existsLocked(p action.Path) bool {
	if p.Kind == action.KindFolder {
		_, ok := m.folders[p.String()]
		return ok
	}
	_, ok := m.files[p.String()]
	return ok
}

func (m *Memory) requireParentLocked(p action.Path) error {
	parent, ok := p.Parent()
	if !ok {
		return nil
	}
	if _, exists := m.folders[parent.String()]; !exists {
		return fmt.Errorf("%w: parent folder %s", store.ErrNotExist, parent)
	}
	return nil
}

func (m *Memory) requireFreeLocked(p action.Path) error {
	if err := m.requireParentLocked(p); err != nil {
		return err
	}
	key := p.String()
	if _, ok := m.folders[key]; ok {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, p)
	}
	if _, ok := m.files[key]; ok {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, p)
	}
	return nil
}

func (m *Memory) ensureFileLocked(p action.Path) error {
	if _, ok := m.files[p.String()]; ok {
		return nil
	}
	if err := m.requireParentLocked(p); err != nil {
		return err
	}
	m.files[p.String()] = ""
	return nil
}

func (m *Memory) renameFileLocked(from, to action.Path) error {
	content, ok := m.files[from.String()]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotExist, from)
	}
	if err := m.requireFreeLocked(to); err != nil {
		return err
	}
	delete(m.files, from.String())
	m.files[to.String()] = content
	return nil
}

func (m *Memory) removeFileLocked(p action.Path) error {
	if _, ok := m.files[p.String()]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotExist, p)
	}
	delete(m.files, p.String())
	return nil
}
