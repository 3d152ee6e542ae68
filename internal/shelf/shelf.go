// Package shelf ties the planner, the self-event tracker, a store and the
// optional journal and sinks into one place producers hand batches to.
package shelf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leafo/shelf/internal/action"
	"github.com/leafo/shelf/internal/journal"
	"github.com/leafo/shelf/internal/plan"
	"github.com/leafo/shelf/internal/selfevent"
	"github.com/leafo/shelf/internal/sink"
	"github.com/leafo/shelf/internal/store"
	"github.com/leafo/shelf/internal/watch"
)

// Options control a Shelf.
type Options struct {
	// Root is the directory watched by Watch. Empty disables watching.
	Root              string
	TrashDir          string
	ExistsConcurrency int
	SelfEventTTL      time.Duration
	Debounce          time.Duration
	IgnoreDirs        []string
}

// Result describes a dispatched batch.
type Result struct {
	BatchID string
	Planned []action.Action
	Applied int
}

// Shelf plans and dispatches batches against a store.
type Shelf struct {
	store   store.Store
	opts    Options
	planner *plan.Planner
	tracker *selfevent.Tracker
	journal *journal.Journal
	targets []sink.Target
	logger  *slog.Logger
}

// New constructs a Shelf dispatching into st.
func New(st store.Store, opts Options, logger *slog.Logger) *Shelf {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shelf{
		store: st,
		opts:  opts,
		planner: &plan.Planner{
			Checker:     st,
			Concurrency: opts.ExistsConcurrency,
			Logger:      logger,
		},
		tracker: selfevent.New(selfevent.Options{TTL: opts.SelfEventTTL}),
		logger:  logger,
	}
}

// SetJournal records every dispatched batch in j.
func (s *Shelf) SetJournal(j *journal.Journal) {
	s.journal = j
}

// RegisterTarget adds a sink notified after every dispatch. Nil targets are
// ignored so disabled sinks can be registered unconditionally.
func (s *Shelf) RegisterTarget(t sink.Target) {
	if t == nil {
		return
	}
	s.targets = append(s.targets, t)
}

// Tracker exposes the self-event tracker shared by dispatch and watch.
func (s *Shelf) Tracker() *selfevent.Tracker {
	return s.tracker
}

// Plan returns the batch as it would be dispatched, without touching the
// store beyond existence checks.
func (s *Shelf) Plan(ctx context.Context, batch []action.Action) ([]action.Action, error) {
	return s.planner.Plan(ctx, batch)
}

// Apply plans batch, registers the planned actions with the tracker and
// dispatches them in order. On a dispatch failure the returned Result still
// reports how many actions were applied.
func (s *Shelf) Apply(ctx context.Context, batch []action.Action) (Result, error) {
	logger := s.loggerOrDefault()

	planned, err := s.planner.Plan(ctx, batch)
	if err != nil {
		return Result{}, fmt.Errorf("plan batch: %w", err)
	}
	result := Result{Planned: planned}
	if len(planned) == 0 {
		return result, nil
	}

	if s.journal != nil {
		id, err := s.journal.BeginBatch(ctx, planned)
		if err != nil {
			return result, err
		}
		result.BatchID = id
	}

	s.tracker.Register(planned)

	var changes sink.ChangeSet
	dispatchErr := store.Apply(ctx, s.store, planned, func(i int, a action.Action, err error) {
		if s.journal != nil {
			if recErr := s.journal.RecordAction(ctx, result.BatchID, i, a, err); recErr != nil {
				logger.Warn("Failed to journal action", "batch_id", result.BatchID, "action", a.String(), "error", recErr)
			}
		}
		if err != nil {
			return
		}
		result.Applied++
		if len(s.targets) > 0 {
			s.collectChange(ctx, &changes, a)
		}
	})

	if s.journal != nil {
		if finErr := s.journal.FinishBatch(context.WithoutCancel(ctx), result.BatchID, dispatchErr); finErr != nil {
			logger.Warn("Failed to finish journal batch", "batch_id", result.BatchID, "error", finErr)
		}
	}

	if dispatchErr != nil {
		logger.Error("Dispatch failed", "batch_id", result.BatchID, "applied", result.Applied, "planned", len(planned), "error", dispatchErr)
	} else {
		logger.Info("Applied batch", "batch_id", result.BatchID, "actions", len(planned))
	}

	s.notifyTargets(ctx, changes)
	return result, dispatchErr
}

// Settle waits until the store has echoed every action of the latest batch.
func (s *Shelf) Settle(ctx context.Context) error {
	return s.tracker.WaitForAllRegistered(ctx)
}

// Watch reports external changes below Options.Root until ctx is done.
// Sinks are brought up to date with every external change before extra,
// when set, sees the events.
func (s *Shelf) Watch(ctx context.Context, extra watch.Handler) error {
	if s.opts.Root == "" {
		return errors.New("watch requires a store root")
	}
	ignore := append([]string(nil), s.opts.IgnoreDirs...)
	if s.opts.TrashDir != "" {
		ignore = append(ignore, s.opts.TrashDir)
	}
	w := watch.New(s.opts.Root, watch.Options{
		Debounce:   s.opts.Debounce,
		IgnoreDirs: ignore,
		Filter:     s.tracker,
		Logger:     s.loggerOrDefault(),
	})
	return w.Run(ctx, watch.HandlerFunc(func(ctx context.Context, events []store.Event) error {
		if err := s.HandleEvents(ctx, events); err != nil {
			return err
		}
		if extra != nil {
			return extra.HandleEvents(ctx, events)
		}
		return nil
	}))
}

// HandleEvents forwards external store changes to the sinks.
func (s *Shelf) HandleEvents(ctx context.Context, events []store.Event) error {
	if len(s.targets) == 0 {
		return nil
	}
	logger := s.loggerOrDefault()

	var changes sink.ChangeSet
	for _, ev := range events {
		p, err := action.ParsePath(ev.Path)
		if err != nil {
			logger.Debug("Skipping unparseable path", "path", ev.Path, "error", err)
			continue
		}
		switch p.Kind {
		case action.KindMdFile:
			if ev.Op == store.OpCreated {
				changes.Write(sink.Note{Path: p.String()})
			} else {
				changes.Remove(p.String())
			}
		case action.KindFolder:
			if ev.Op == store.OpCreated {
				s.collectFolder(ctx, &changes, p)
			} else {
				changes.RemoveFolder(p.String())
			}
		}
	}
	s.notifyTargets(ctx, changes)
	return ctx.Err()
}

// collectChange records the note level effect of an applied action. Note
// contents are read once dispatch is over.
func (s *Shelf) collectChange(ctx context.Context, changes *sink.ChangeSet, a action.Action) {
	switch v := a.(type) {
	case action.UpsertMdFile:
		changes.Write(sink.Note{Path: v.Path.String()})
	case action.ProcessMdFile:
		changes.Write(sink.Note{Path: v.Path.String()})
	case action.RenameMdFile:
		changes.Remove(v.From.String())
		changes.Write(sink.Note{Path: v.To.String()})
	case action.TrashMdFile:
		changes.Remove(v.Path.String())
	case action.RenameFolder:
		changes.RemoveFolder(v.From.String())
		s.collectFolder(ctx, changes, v.To)
	case action.TrashFolder:
		changes.RemoveFolder(v.Path.String())
	}
}

func (s *Shelf) collectFolder(ctx context.Context, changes *sink.ChangeSet, folder action.Path) {
	files, err := s.store.ListMdFiles(ctx, folder)
	if err != nil {
		s.loggerOrDefault().Warn("Failed to list notes", "folder", folder.String(), "error", err)
		return
	}
	for _, f := range files {
		changes.Write(sink.Note{Path: f.String()})
	}
}

// notifyTargets fills in note contents and hands the change set to every
// target. Sink failures are logged; the store is already up to date.
func (s *Shelf) notifyTargets(ctx context.Context, changes sink.ChangeSet) {
	if len(s.targets) == 0 || changes.IsEmpty() {
		return
	}
	logger := s.loggerOrDefault()

	written := changes.Written[:0]
	for _, note := range changes.Written {
		p, err := action.ParsePath(note.Path)
		if err != nil {
			continue
		}
		content, err := s.store.ReadMdFile(ctx, p)
		if err != nil {
			logger.Warn("Failed to read note for sinks", "path", note.Path, "error", err)
			continue
		}
		note.Content = content
		written = append(written, note)
	}
	changes.Written = written
	if changes.IsEmpty() {
		return
	}

	for _, target := range s.targets {
		if err := target.ApplyChanges(ctx, changes); err != nil {
			logger.Error("Sink update failed", "written", len(changes.Written), "removed", len(changes.Removed)+len(changes.RemovedFolders), "error", err)
		}
	}
}

func (s *Shelf) loggerOrDefault() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
