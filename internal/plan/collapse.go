package plan

import (
	"context"
	"fmt"

	"github.com/leafo/shelf/internal/action"
)

// collapsed holds one keyed action per resource plus the processes that
// must run after an ensure-exist upsert on the same key.
type collapsed struct {
	order      []action.Key
	byKey      map[action.Key]action.Action
	extraOrder []action.Key
	extra      map[action.Key]action.ProcessMdFile
}

func newCollapsed(capacity int) *collapsed {
	return &collapsed{
		order: make([]action.Key, 0, capacity),
		byKey: make(map[action.Key]action.Action, capacity),
		extra: make(map[action.Key]action.ProcessMdFile),
	}
}

// Collapse reduces a batch to its minimal equivalent set. Later actions
// carry more recent intent. Transforms that fold into known content run
// during collapse and receive ctx.
func Collapse(ctx context.Context, actions []action.Action) ([]action.Action, error) {
	c := newCollapsed(len(actions))
	for _, incoming := range actions {
		if err := c.add(ctx, incoming); err != nil {
			return nil, err
		}
	}
	return c.actions(), nil
}

func (c *collapsed) actions() []action.Action {
	out := make([]action.Action, 0, len(c.order)+len(c.extra))
	for _, key := range c.order {
		out = append(out, c.byKey[key])
	}
	for _, key := range c.extraOrder {
		if proc, ok := c.extra[key]; ok {
			out = append(out, proc)
		}
	}
	return out
}

func (c *collapsed) set(key action.Key, a action.Action) {
	if _, ok := c.byKey[key]; !ok {
		c.order = append(c.order, key)
	}
	c.byKey[key] = a
}

func (c *collapsed) queueProcess(key action.Key, proc action.ProcessMdFile) {
	if queued, ok := c.extra[key]; ok {
		queued.Transform = queued.Transform.Then(proc.Transform)
		c.extra[key] = queued
		return
	}
	c.extra[key] = proc
	c.extraOrder = append(c.extraOrder, key)
}

func (c *collapsed) dropProcess(key action.Key) {
	if _, ok := c.extra[key]; !ok {
		return
	}
	delete(c.extra, key)
	for i, k := range c.extraOrder {
		if k == key {
			c.extraOrder = append(c.extraOrder[:i], c.extraOrder[i+1:]...)
			break
		}
	}
}

func (c *collapsed) add(ctx context.Context, incoming action.Action) error {
	key := incoming.Key()
	existing, ok := c.byKey[key]
	if !ok {
		c.set(key, incoming)
		return nil
	}

	switch {
	case action.IsTrash(existing):
		return nil
	case action.IsTrash(incoming):
		c.set(key, incoming)
		c.dropProcess(key)
		return nil
	}

	switch cur := existing.(type) {
	case action.RenameFolder, action.RenameFile, action.RenameMdFile:
		if action.SameRename(cur, incoming) {
			return nil
		}

	case action.UpsertMdFile:
		switch in := incoming.(type) {
		case action.ProcessMdFile:
			if cur.IsEnsureExist() {
				c.queueProcess(key, in)
				return nil
			}
			content, err := in.Transform.Apply(ctx, *cur.Content)
			if err != nil {
				return fmt.Errorf("fold transform into %s: %w", cur.Path, err)
			}
			c.set(key, action.Upsert(cur.Path, content))
			return nil
		case action.UpsertMdFile:
			if in.IsEnsureExist() {
				return nil
			}
			c.set(key, in)
			c.dropProcess(key)
			return nil
		}

	case action.ProcessMdFile:
		switch in := incoming.(type) {
		case action.ProcessMdFile:
			cur.Transform = cur.Transform.Then(in.Transform)
			c.set(key, cur)
			return nil
		case action.UpsertMdFile:
			c.set(key, in)
			if in.IsEnsureExist() {
				c.queueProcess(key, cur)
			} else {
				c.dropProcess(key)
			}
			return nil
		}
	}

	c.set(key, incoming)
	c.dropProcess(key)
	return nil
}
