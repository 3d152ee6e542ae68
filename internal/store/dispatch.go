package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/leafo/shelf/internal/action"
)

var (
	ErrNotExist      = errors.New("path does not exist")
	ErrAlreadyExists = errors.New("path already exists")
)

// Dispatcher applies individual actions to the store.
type Dispatcher interface {
	CreateFolder(ctx context.Context, p action.Path) error
	RenameFolder(ctx context.Context, from, to action.Path) error
	TrashFolder(ctx context.Context, p action.Path) error
	CreateFile(ctx context.Context, p action.Path) error
	RenameFile(ctx context.Context, from, to action.Path) error
	TrashFile(ctx context.Context, p action.Path) error
	UpsertMdFile(ctx context.Context, p action.Path, content *string) error
	ProcessMdFile(ctx context.Context, p action.Path, transform action.Transform) error
	RenameMdFile(ctx context.Context, from, to action.Path) error
	TrashMdFile(ctx context.Context, p action.Path) error
}

// Store is a Dispatcher that can also answer existence and read queries.
type Store interface {
	Dispatcher
	Exists(ctx context.Context, p action.Path) (bool, error)
	ReadMdFile(ctx context.Context, p action.Path) (string, error)
	ListMdFiles(ctx context.Context, folder action.Path) ([]action.Path, error)
}

// DispatchError reports the action a batch stopped at. Actions before Index
// were applied; the failed action and everything after it were not.
type DispatchError struct {
	Index   int
	Action  action.Action
	Actions []action.Action
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s (action %d of %d): %v", e.Action, e.Index+1, len(e.Actions), e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Applied returns the actions that reached the store.
func (e *DispatchError) Applied() []action.Action {
	return e.Actions[:e.Index]
}

// Remaining returns the failed action and everything after it.
func (e *DispatchError) Remaining() []action.Action {
	return e.Actions[e.Index:]
}

// Apply dispatches actions strictly in order and stops at the first failure.
// Observe, when set, is called after every attempted action.
func Apply(ctx context.Context, d Dispatcher, actions []action.Action, observe func(i int, a action.Action, err error)) error {
	for i, a := range actions {
		err := ctx.Err()
		if err == nil {
			err = dispatchOne(ctx, d, a)
		}
		if observe != nil {
			observe(i, a, err)
		}
		if err != nil {
			return &DispatchError{Index: i, Action: a, Actions: actions, Err: err}
		}
	}
	return nil
}

func dispatchOne(ctx context.Context, d Dispatcher, a action.Action) error {
	switch v := a.(type) {
	case action.CreateFolder:
		return d.CreateFolder(ctx, v.Path)
	case action.RenameFolder:
		return d.RenameFolder(ctx, v.From, v.To)
	case action.TrashFolder:
		return d.TrashFolder(ctx, v.Path)
	case action.CreateFile:
		return d.CreateFile(ctx, v.Path)
	case action.RenameFile:
		return d.RenameFile(ctx, v.From, v.To)
	case action.TrashFile:
		return d.TrashFile(ctx, v.Path)
	case action.UpsertMdFile:
		return d.UpsertMdFile(ctx, v.Path, v.Content)
	case action.ProcessMdFile:
		return d.ProcessMdFile(ctx, v.Path, v.Transform)
	case action.RenameMdFile:
		return d.RenameMdFile(ctx, v.From, v.To)
	case action.TrashMdFile:
		return d.TrashMdFile(ctx, v.Path)
	}
	return fmt.Errorf("unsupported action %T", a)
}
