package plan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/leafo/shelf/internal/action"
)

// DefaultExistsConcurrency bounds parallel existence checks.
const DefaultExistsConcurrency = 8

// Checker reports whether a path already exists in the store.
type Checker interface {
	Exists(ctx context.Context, p action.Path) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, p action.Path) (bool, error)

func (f CheckerFunc) Exists(ctx context.Context, p action.Path) (bool, error) {
	return f(ctx, p)
}

type requirement struct {
	path action.Path
	file bool
}

// Ensure appends the ensure-exist actions the batch needs so dispatch does
// not trip over a missing parent folder or a missing file behind a process.
// Each prerequisite is queried once; keys the batch trashes or creates
// itself are never queried. An existence check error aborts the pass.
func Ensure(ctx context.Context, actions []action.Action, checker Checker, concurrency int) ([]action.Action, error) {
	reqs := collectRequirements(actions)
	if len(reqs) == 0 {
		return actions, nil
	}
	if checker == nil {
		return nil, fmt.Errorf("ensure requirements: existence checker is required")
	}
	if concurrency <= 0 {
		concurrency = DefaultExistsConcurrency
	}

	exists := make([]bool, len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, req := range reqs {
		group.Go(func() error {
			ok, err := checker.Exists(groupCtx, req.path)
			if err != nil {
				return fmt.Errorf("check existence of %s: %w", req.path, err)
			}
			exists[i] = ok
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]action.Action, 0, len(actions)+len(reqs))
	out = append(out, actions...)
	for i, req := range reqs {
		if exists[i] {
			continue
		}
		if req.file {
			out = append(out, action.EnsureExist(req.path))
		} else {
			out = append(out, action.CreateFolder{Path: req.path})
		}
	}
	return out, nil
}

// collectRequirements returns the prerequisites of a batch, root-most
// first, without the keys the batch already trashes or creates.
func collectRequirements(actions []action.Action) []requirement {
	trashed := make(map[action.Key]struct{})
	created := make(map[action.Key]struct{})
	for _, a := range actions {
		switch v := a.(type) {
		case action.TrashFolder, action.TrashFile, action.TrashMdFile:
			trashed[v.Key()] = struct{}{}
		case action.CreateFolder:
			created[v.Path.Key()] = struct{}{}
		case action.CreateFile:
			created[v.Path.Key()] = struct{}{}
		case action.UpsertMdFile:
			created[v.Path.Key()] = struct{}{}
		case action.RenameFolder:
			created[v.To.Key()] = struct{}{}
		case action.RenameFile:
			created[v.To.Key()] = struct{}{}
		case action.RenameMdFile:
			created[v.To.Key()] = struct{}{}
		}
	}

	seen := make(map[action.Key]struct{})
	var reqs []requirement
	add := func(p action.Path, file bool) {
		key := p.Key()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if _, ok := trashed[key]; ok {
			return
		}
		if _, ok := created[key]; ok {
			return
		}
		reqs = append(reqs, requirement{path: p, file: file})
	}

	for _, a := range actions {
		if action.IsTrash(a) {
			continue
		}
		for _, ancestor := range a.Target().Ancestors() {
			add(ancestor, false)
		}
		// Rename destinations only get their ancestors: the rename
		// itself fails if the destination file already exists.
		if proc, ok := a.(action.ProcessMdFile); ok {
			add(proc.Path, true)
		}
	}
	return reqs
}
