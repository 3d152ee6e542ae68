package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/shelf/internal/action"
	"github.com/leafo/shelf/internal/selfevent"
	"github.com/leafo/shelf/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []store.Event
}

func (r *recorder) HandleEvents(_ context.Context, events []store.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) has(op store.Op, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Op == op && ev.Path == path {
			return true
		}
	}
	return false
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Path)
	}
	return out
}

func TestFlushCoalescesAndOrders(t *testing.T) {
	w := New(t.TempDir(), Options{})
	w.queue(store.OpCreated, "b.md")
	w.queue(store.OpDeleted, "a.md")
	w.queue(store.OpCreated, "a.md")
	w.queue(store.OpCreated, "b.md")

	assert.Equal(t, []store.Event{
		{Op: store.OpCreated, Path: "a.md"},
		{Op: store.OpDeleted, Path: "a.md"},
		{Op: store.OpCreated, Path: "b.md"},
	}, w.flush())
	assert.Empty(t, w.flush())
}

func TestFlushDropsSelfEvents(t *testing.T) {
	tracker := selfevent.New(selfevent.Options{})
	tracker.Register([]action.Action{
		action.RenameMdFile{From: action.MustParsePath("old.md"), To: action.MustParsePath("new.md")},
	})
	w := New(t.TempDir(), Options{Filter: tracker})
	w.queue(store.OpRenamed, "old.md")
	w.queue(store.OpCreated, "new.md")
	w.queue(store.OpCreated, "theirs.md")

	assert.Equal(t, []store.Event{{Op: store.OpCreated, Path: "theirs.md"}}, w.flush())
	assert.Zero(t, tracker.Pending())
}

func TestIsIgnored(t *testing.T) {
	w := New(t.TempDir(), Options{IgnoreDirs: []string{".trash", "/.git/"}})
	assert.True(t, w.isIgnored(".trash"))
	assert.True(t, w.isIgnored(".trash/123/a.md"))
	assert.True(t, w.isIgnored(".git/HEAD"))
	assert.True(t, w.isIgnored("A/"+store.TempPrefix+"f.md-123"))
	assert.False(t, w.isIgnored(".trashy/a.md"))
	assert.False(t, w.isIgnored("A/f.md"))
}

func runWatcher(t *testing.T, root string, opts Options) *recorder {
	t.Helper()
	opts.Debounce = 20 * time.Millisecond
	w := New(root, opts)
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rec) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-w.Ready():
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return rec
}

func TestRunReportsExternalChanges(t *testing.T) {
	root := t.TempDir()
	rec := runWatcher(t, root, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hi"), 0o644))
	require.Eventually(t, func() bool { return rec.has(store.OpCreated, "note.md") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "note.md")))
	require.Eventually(t, func() bool { return rec.has(store.OpDeleted, "note.md") }, 5*time.Second, 10*time.Millisecond)
}

func TestRunAnnouncesEntriesOfNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := runWatcher(t, root, Options{})

	require.NoError(t, os.MkdirAll(filepath.Join(root, "A", "B"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "A", "B", "f.md"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return rec.has(store.OpCreated, "A") && rec.has(store.OpCreated, "A/B/f.md")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunSkipsSelfEventsAndIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".trash"), 0o755))
	tracker := selfevent.New(selfevent.Options{})
	rec := runWatcher(t, root, Options{Filter: tracker, IgnoreDirs: []string{".trash"}})

	tracker.Register([]action.Action{action.Upsert(action.MustParsePath("mine.md"), "x")})
	require.NoError(t, os.WriteFile(filepath.Join(root, "mine.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".trash", "old.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "theirs.md"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return rec.has(store.OpCreated, "theirs.md") }, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, rec.paths(), "mine.md")
	assert.NotContains(t, rec.paths(), ".trash/old.md")
	assert.Zero(t, tracker.Pending())
}
