// Package selfevent suppresses the store's echo of changes this process
// made itself, so watchers only report edits that came from elsewhere.
package selfevent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leafo/shelf/internal/action"
)

// DefaultTTL is how long a registration waits for its echo.
const DefaultTTL = 10 * time.Second

// Options configure a Tracker.
type Options struct {
	// TTL bounds how long an unmatched entry is kept. Zero uses DefaultTTL.
	TTL time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

type entry struct {
	gen     *generation
	expires time.Time
}

type generation struct {
	remaining int
	done      chan struct{}
}

func (g *generation) release() {
	g.remaining--
	if g.remaining == 0 {
		close(g.done)
	}
}

// Tracker remembers the paths a dispatched batch is expected to touch.
// Registration and matching may happen from different goroutines.
type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	exact    map[string][]entry
	prefixes map[string]time.Time
	latest   *generation
}

// New constructs an empty Tracker.
func New(opts Options) *Tracker {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		ttl:      ttl,
		now:      now,
		exact:    make(map[string][]entry),
		prefixes: make(map[string]time.Time),
	}
}

// Register records the paths the actions will touch. Renames register both
// endpoints independently. Trashed folders and the destination of a renamed
// folder also match everything below them, since a watcher reports their
// contents as they appear or vanish. Processes are skipped because they do
// not produce structural events.
func (t *Tracker) Register(actions []action.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	expires := now.Add(t.ttl)
	t.pruneLocked(now)

	gen := &generation{done: make(chan struct{})}
	add := func(p action.Path) {
		key := p.String()
		t.exact[key] = append(t.exact[key], entry{gen: gen, expires: expires})
		gen.remaining++
	}

	for _, a := range actions {
		switch v := a.(type) {
		case action.ProcessMdFile:
			continue
		case action.RenameFolder:
			t.prefixes[v.To.String()] = expires
			add(v.From)
			add(v.To)
		case action.RenameFile, action.RenameMdFile:
			from, to, _ := action.Endpoints(v)
			add(from)
			add(to)
		case action.TrashFolder:
			t.prefixes[v.Path.String()] = expires
			add(v.Path)
		default:
			add(a.Target())
		}
	}

	if gen.remaining == 0 {
		close(gen.done)
	}
	t.latest = gen
}

// ShouldIgnore reports whether a raw change notification was caused by a
// registered action. Exact registrations match once; paths below a trashed
// or renamed folder match for as long as the folder registration lives.
func (t *Tracker) ShouldIgnore(raw string) bool {
	key := action.NormalizeRaw(raw)
	if key == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneLocked(now)

	if entries := t.exact[key]; len(entries) > 0 {
		entries[0].gen.release()
		if len(entries) == 1 {
			delete(t.exact, key)
		} else {
			t.exact[key] = entries[1:]
		}
		return true
	}

	for prefix := range t.prefixes {
		if strings.HasPrefix(key, prefix+"/") {
			return true
		}
	}
	return false
}

// Pending returns the number of exact registrations not yet matched.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	n := 0
	for _, entries := range t.exact {
		n += len(entries)
	}
	return n
}

// WaitForAllRegistered blocks until every exact entry of the most recent
// registration was matched or expired.
func (t *Tracker) WaitForAllRegistered(ctx context.Context) error {
	for {
		t.mu.Lock()
		t.pruneLocked(t.now())
		gen := t.latest
		next, hasNext := t.nextExpiryLocked()
		now := t.now()
		t.mu.Unlock()

		if gen == nil {
			return nil
		}
		select {
		case <-gen.done:
			return nil
		default:
		}

		var expiry <-chan time.Time
		var timer *time.Timer
		if hasNext {
			timer = time.NewTimer(max(next.Sub(now), time.Millisecond))
			expiry = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		case <-gen.done:
			stopTimer(timer)
			return nil
		case <-expiry:
		}
	}
}

func (t *Tracker) pruneLocked(now time.Time) {
	for key, entries := range t.exact {
		kept := entries[:0]
		for _, e := range entries {
			if now.Before(e.expires) {
				kept = append(kept, e)
				continue
			}
			e.gen.release()
		}
		if len(kept) == 0 {
			delete(t.exact, key)
		} else {
			t.exact[key] = kept
		}
	}
	for prefix, expires := range t.prefixes {
		if !now.Before(expires) {
			delete(t.prefixes, prefix)
		}
	}
}

func (t *Tracker) nextExpiryLocked() (time.Time, bool) {
	var next time.Time
	found := false
	for _, entries := range t.exact {
		for _, e := range entries {
			if !found || e.expires.Before(next) {
				next = e.expires
				found = true
			}
		}
	}
	return next, found
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
