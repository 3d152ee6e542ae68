package plan

import (
	"context"
	"log/slog"

	"github.com/leafo/shelf/internal/action"
)

// Planner turns a producer's batch into an ordered, dispatchable batch.
type Planner struct {
	Checker     Checker
	Concurrency int
	Logger      *slog.Logger
}

// Plan collapses the batch, adds missing prerequisites and orders the
// result by dependency.
func (p *Planner) Plan(ctx context.Context, batch []action.Action) ([]action.Action, error) {
	logger := p.loggerOrDefault()

	collapsedBatch, err := Collapse(ctx, batch)
	if err != nil {
		return nil, err
	}
	ensured, err := Ensure(ctx, collapsedBatch, p.Checker, p.Concurrency)
	if err != nil {
		return nil, err
	}
	sorted, err := Sort(BuildGraph(ensured))
	if err != nil {
		logger.Error("Dependency graph has a cycle", "error", err)
		return nil, err
	}

	logger.Debug("Planned batch", "input", len(batch), "collapsed", len(collapsedBatch), "synthesized", len(ensured)-len(collapsedBatch), "planned", len(sorted))
	return sorted, nil
}

func (p *Planner) loggerOrDefault() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
