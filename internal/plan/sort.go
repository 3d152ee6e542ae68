package plan

import (
	"container/heap"
	"errors"
	"fmt"
	"strings"

	"github.com/leafo/shelf/internal/action"
)

// ErrCyclicDependency means the graph rules produced a cycle. The rules are
// acyclic by construction, so this always indicates a bug.
var ErrCyclicDependency = errors.New("cyclic dependency detected")

// CycleError lists the actions that could never be scheduled.
type CycleError struct {
	Stuck []action.Action
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Stuck))
	for _, a := range e.Stuck {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(parts, "; "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicDependency
}

// Sort linearizes the graph so every action follows the actions it depends
// on. Among schedulable actions the shallowest target goes first, then batch
// order.
func Sort(g *Graph) ([]action.Action, error) {
	inDegree := make([]int, g.Len())
	ready := &readyQueue{}
	for _, n := range g.nodes {
		inDegree[n.Index] = len(n.DependsOn)
		if inDegree[n.Index] == 0 {
			heap.Push(ready, n)
		}
	}

	sorted := make([]action.Action, 0, g.Len())
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*Node)
		sorted = append(sorted, n.Action)
		for _, dependent := range n.RequiredBy {
			inDegree[dependent.Index]--
			if inDegree[dependent.Index] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	if len(sorted) != g.Len() {
		stuck := make([]action.Action, 0, g.Len()-len(sorted))
		for _, n := range g.nodes {
			if inDegree[n.Index] > 0 {
				stuck = append(stuck, n.Action)
			}
		}
		return nil, &CycleError{Stuck: stuck}
	}
	return sorted, nil
}

type readyQueue []*Node

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	di, dj := q[i].Action.Target().Depth(), q[j].Action.Target().Depth()
	if di != dj {
		return di < dj
	}
	return q[i].Index < q[j].Index
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*Node)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}
