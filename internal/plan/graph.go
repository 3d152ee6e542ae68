package plan

import "github.com/leafo/shelf/internal/action"

// Node is one action in a dependency graph.
type Node struct {
	Index      int
	Action     action.Action
	DependsOn  []*Node
	RequiredBy []*Node
}

// Graph records which actions of a batch must run before which. Nodes are
// aligned with the batch the graph was built from; several nodes can share a
// key (an ensure-exist upsert and the process queued behind it).
type Graph struct {
	nodes []*Node
	byKey map[action.Key][]*Node
}

// Nodes returns the nodes in batch order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Lookup returns the nodes whose action has the given key.
func (g *Graph) Lookup(key action.Key) []*Node {
	return g.byKey[key]
}

// Actions returns the actions in batch order.
func (g *Graph) Actions() []action.Action {
	out := make([]action.Action, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Action
	}
	return out
}

// BuildGraph computes dependency edges for a collapsed batch:
//   - folder and file creation depend on whoever creates their ancestor folders
//   - renames depend on the creators of the destination's ancestors
//   - a process depends on the upsert of its file and on its ancestors
//   - trashes never wait on anything
//
// Ancestors without a creator in the batch are assumed to exist already.
func BuildGraph(actions []action.Action) *Graph {
	g := &Graph{
		nodes: make([]*Node, len(actions)),
		byKey: make(map[action.Key][]*Node, len(actions)),
	}
	folderCreators := make(map[action.Key]*Node)
	fileUpserts := make(map[action.Key]*Node)

	for i, a := range actions {
		n := &Node{Index: i, Action: a}
		g.nodes[i] = n
		g.byKey[a.Key()] = append(g.byKey[a.Key()], n)

		switch v := a.(type) {
		case action.CreateFolder:
			folderCreators[v.Path.Key()] = n
		case action.RenameFolder:
			folderCreators[v.To.Key()] = n
		case action.UpsertMdFile:
			fileUpserts[v.Path.Key()] = n
		}
	}

	for _, n := range g.nodes {
		var target action.Path
		switch v := n.Action.(type) {
		case action.TrashFolder, action.TrashFile, action.TrashMdFile:
			continue
		case action.ProcessMdFile:
			if upsert, ok := fileUpserts[v.Path.Key()]; ok {
				link(n, upsert)
			}
			target = v.Path
		case action.CreateFolder:
			target = v.Path
		case action.CreateFile:
			target = v.Path
		case action.UpsertMdFile:
			target = v.Path
		case action.RenameFolder:
			target = v.To
		case action.RenameFile:
			target = v.To
		case action.RenameMdFile:
			target = v.To
		}
		for _, ancestor := range target.Ancestors() {
			if creator, ok := folderCreators[ancestor.Key()]; ok && creator != n {
				link(n, creator)
			}
		}
	}
	return g
}

func link(n, dep *Node) {
	for _, existing := range n.DependsOn {
		if existing == dep {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, dep)
	dep.RequiredBy = append(dep.RequiredBy, n)
}
