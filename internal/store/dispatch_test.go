package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/shelf/internal/action"
	"github.com/leafo/shelf/internal/store"
	"github.com/leafo/shelf/internal/store/storetest"
)

func p(raw string) action.Path {
	return action.MustParsePath(raw)
}

func TestApplyRunsInOrder(t *testing.T) {
	mem := storetest.NewMemory()
	batch := []action.Action{
		action.CreateFolder{Path: p("A")},
		action.CreateFolder{Path: p("A/B")},
		action.Upsert(p("A/B/f.md"), "hello"),
		action.ProcessMdFile{Path: p("A/B/f.md"), Transform: action.Pure(func(s string) string { return s + "!" })},
		action.RenameMdFile{From: p("A/B/f.md"), To: p("A/g.md")},
		action.CreateFile{Path: p("A/img.png")},
		action.TrashFile{Path: p("A/img.png")},
	}

	var observed []int
	err := store.Apply(context.Background(), mem, batch, func(i int, _ action.Action, err error) {
		require.NoError(t, err)
		observed = append(observed, i)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, observed)

	content, ok := mem.Content("A/g.md")
	require.True(t, ok)
	assert.Equal(t, "hello!", content)
	assert.Equal(t, []string{"A", "A/B", "A/g.md"}, mem.Paths())
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	mem := storetest.NewMemory()
	batch := []action.Action{
		action.CreateFolder{Path: p("A")},
		action.Upsert(p("B/f.md"), "x"),
		action.CreateFolder{Path: p("C")},
	}
	err := store.Apply(context.Background(), mem, batch, nil)
	require.Error(t, err)

	var dispatchErr *store.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, 1, dispatchErr.Index)
	assert.Len(t, dispatchErr.Applied(), 1)
	assert.Len(t, dispatchErr.Remaining(), 2)
	assert.ErrorIs(t, err, store.ErrNotExist)
	assert.Equal(t, []string{"create_folder A"}, mem.Log())
}

func TestApplyReportsInjectedFailure(t *testing.T) {
	mem := storetest.NewMemory("A")
	boom := errors.New("disk full")
	mem.FailOn("A/f.md", boom)
	err := store.Apply(context.Background(), mem, []action.Action{action.Upsert(p("A/f.md"), "x")}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "action 1 of 1")
}

func TestApplyHonorsCancellationBetweenActions(t *testing.T) {
	mem := storetest.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	batch := []action.Action{
		action.CreateFolder{Path: p("A")},
		action.CreateFolder{Path: p("B")},
	}
	err := store.Apply(ctx, mem, batch, func(i int, _ action.Action, _ error) {
		if i == 0 {
			cancel()
		}
	})
	var dispatchErr *store.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, 1, dispatchErr.Index)
	assert.ErrorIs(t, err, context.Canceled)
}
