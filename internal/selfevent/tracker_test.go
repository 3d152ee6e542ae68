package selfevent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/shelf/internal/action"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Options{TTL: time.Minute, Now: clock.Now}), clock
}

func p(raw string) action.Path {
	return action.MustParsePath(raw)
}

func TestExactMatchPopsOnce(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{action.Upsert(p("A/f.md"), "x")})

	assert.True(t, tracker.ShouldIgnore("A/f.md"))
	assert.False(t, tracker.ShouldIgnore("A/f.md"))

	tracker.Register([]action.Action{action.Upsert(p("A/f.md"), "y")})
	assert.True(t, tracker.ShouldIgnore("/A/f.md"))
}

func TestRepeatedRegistrationIsAMultiset(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{
		action.CreateFile{Path: p("img.png")},
		action.TrashFile{Path: p("img.png")},
	})
	assert.Equal(t, 2, tracker.Pending())
	assert.True(t, tracker.ShouldIgnore("img.png"))
	assert.True(t, tracker.ShouldIgnore("img.png"))
	assert.False(t, tracker.ShouldIgnore("img.png"))
}

func TestRenameEndpointsAreIndependent(t *testing.T) {
	rename := action.RenameMdFile{From: p("A/old.md"), To: p("B/new.md")}

	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{rename})
	assert.True(t, tracker.ShouldIgnore("B/new.md"))
	assert.True(t, tracker.ShouldIgnore("A/old.md"))
	assert.False(t, tracker.ShouldIgnore("B/new.md"))

	tracker, _ = newTestTracker()
	tracker.Register([]action.Action{rename})
	assert.True(t, tracker.ShouldIgnore("A/old.md"))
	assert.False(t, tracker.ShouldIgnore("A/old.md"))
	assert.True(t, tracker.ShouldIgnore("B/new.md"))
}

func TestTrashFolderPrefixIsNotConsumed(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{action.TrashFolder{Path: p("Archive")}})

	for i := 0; i < 50; i++ {
		assert.True(t, tracker.ShouldIgnore(fmt.Sprintf("Archive/Sub/%d.md", i)))
	}
	assert.True(t, tracker.ShouldIgnore("Archive"))
	assert.False(t, tracker.ShouldIgnore("Archive"))
	assert.True(t, tracker.ShouldIgnore("Archive/late.md"))
	assert.False(t, tracker.ShouldIgnore("ArchiveSibling/x.md"))
}

func TestRenamedFolderContentsAreIgnored(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.Register([]action.Action{action.RenameFolder{From: p("A"), To: p("B")}})
	assert.Equal(t, 2, tracker.Pending())

	assert.True(t, tracker.ShouldIgnore("B/f.md"))
	assert.True(t, tracker.ShouldIgnore("B/Sub/g.md"))
	assert.Equal(t, 2, tracker.Pending())
	assert.True(t, tracker.ShouldIgnore("B"))
	assert.True(t, tracker.ShouldIgnore("A"))
	assert.Zero(t, tracker.Pending())

	assert.True(t, tracker.ShouldIgnore("B/late.md"))
	assert.False(t, tracker.ShouldIgnore("A/f.md"))
	assert.False(t, tracker.ShouldIgnore("BSibling/x.md"))

	clock.Advance(2 * time.Minute)
	assert.False(t, tracker.ShouldIgnore("B/f.md"))
}

func TestProcessIsNeverRegistered(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{action.ProcessMdFile{Path: p("f.md"), Transform: action.Pure(func(s string) string { return s })}})
	assert.Zero(t, tracker.Pending())
	assert.False(t, tracker.ShouldIgnore("f.md"))
}

func TestEntriesExpire(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.Register([]action.Action{
		action.CreateFolder{Path: p("A")},
		action.TrashFolder{Path: p("Old")},
	})
	clock.Advance(2 * time.Minute)

	assert.False(t, tracker.ShouldIgnore("A"))
	assert.False(t, tracker.ShouldIgnore("Old/child.md"))
	assert.Zero(t, tracker.Pending())
}

func TestWaitForAllRegisteredAfterPops(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{
		action.RenameFolder{From: p("A"), To: p("B")},
		action.CreateFolder{Path: p("C")},
	})

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForAllRegistered(context.Background())
	}()

	assert.True(t, tracker.ShouldIgnore("B"))
	assert.True(t, tracker.ShouldIgnore("C"))
	select {
	case err := <-done:
		t.Fatalf("wait returned before the rename source was popped: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	assert.True(t, tracker.ShouldIgnore("A"))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after every entry was popped")
	}
}

func TestWaitForAllRegisteredHonorsContext(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Register([]action.Action{action.CreateFolder{Path: p("A")}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.WaitForAllRegistered(ctx), context.DeadlineExceeded)
}

func TestWaitForAllRegisteredReturnsOnExpiry(t *testing.T) {
	tracker, clock := newTestTracker()
	tracker.Register([]action.Action{action.CreateFolder{Path: p("A")}})
	clock.Advance(time.Hour)
	assert.NoError(t, tracker.WaitForAllRegistered(context.Background()))
}

func TestWaitWithNothingRegistered(t *testing.T) {
	tracker, _ := newTestTracker()
	assert.NoError(t, tracker.WaitForAllRegistered(context.Background()))
	tracker.Register([]action.Action{action.ProcessMdFile{Path: p("f.md")}})
	assert.NoError(t, tracker.WaitForAllRegistered(context.Background()))
}

func TestConcurrentRegisterAndMatch(t *testing.T) {
	tracker, _ := newTestTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tracker.Register([]action.Action{action.Upsert(p(fmt.Sprintf("n%d.md", i)), "x")})
		}(i)
		go func(i int) {
			defer wg.Done()
			tracker.ShouldIgnore(fmt.Sprintf("n%d.md", i))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, tracker.Pending(), 20)
}
