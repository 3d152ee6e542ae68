// Package sink forwards the content effects of dispatched batches to
// external consumers such as a search index or a shell hook.
package sink

import (
	"context"
	"strings"
)

// Note is a markdown file as it stands after a dispatch.
type Note struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeSet aggregates written notes and removed paths.
type ChangeSet struct {
	Written        []Note   `json:"written"`
	Removed        []string `json:"removed"`
	RemovedFolders []string `json:"removed_folders"`
}

// Merge combines another change set into the receiver. A later write of
// the same note replaces the earlier one.
func (c *ChangeSet) Merge(other ChangeSet) {
	for _, note := range other.Written {
		c.Write(note)
	}
	if len(other.Removed) > 0 {
		c.Removed = append(c.Removed, other.Removed...)
	}
	if len(other.RemovedFolders) > 0 {
		c.RemovedFolders = append(c.RemovedFolders, other.RemovedFolders...)
	}
}

// Write records note, replacing an earlier write of the same path.
func (c *ChangeSet) Write(note Note) {
	for i := range c.Written {
		if c.Written[i].Path == note.Path {
			c.Written[i] = note
			return
		}
	}
	c.Written = append(c.Written, note)
}

// Remove records a removed note path and forgets any pending write of it.
func (c *ChangeSet) Remove(path string) {
	c.dropWrites(func(p string) bool { return p == path })
	c.Removed = append(c.Removed, path)
}

// RemoveFolder records a removed folder and forgets pending writes below it.
func (c *ChangeSet) RemoveFolder(folder string) {
	prefix := folder + "/"
	c.dropWrites(func(p string) bool { return strings.HasPrefix(p, prefix) })
	c.RemovedFolders = append(c.RemovedFolders, folder)
}

func (c *ChangeSet) dropWrites(match func(string) bool) {
	kept := c.Written[:0]
	for _, note := range c.Written {
		if !match(note.Path) {
			kept = append(kept, note)
		}
	}
	c.Written = kept
}

// IsEmpty reports whether there are no recorded changes.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Written) == 0 && len(c.Removed) == 0 && len(c.RemovedFolders) == 0
}

// Target consumes change sets.
type Target interface {
	ApplyChanges(ctx context.Context, changes ChangeSet) error
}
