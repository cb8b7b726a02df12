package dialogue

import (
	"sort"

	"github.com/queststage/queststage/queststage/database/models"
)

// Edge is one out-edge of the thread graph, derived from a reply option.
// Target is nil for dead-end options (no or dangling next message); such
// options are never offered as choices.
type Edge struct {
	Label        string
	Target       *models.DialogueMessage
	DelaySeconds int
}

// Graph is the adjacency view of a thread's messages, built once per
// traversal from the node set. The node's own option list stays the single
// source of truth for edges; the graph only resolves the references.
type Graph struct {
	nodes map[int64]*models.DialogueMessage
	order []*models.DialogueMessage
	out   map[int64][]Edge
	// hasIncoming marks nodes referenced by a reply option of another node.
	hasIncoming map[int64]bool
}

// BuildGraph indexes the messages of one thread. Options pointing outside
// the node set are kept as dead-end edges, never an error.
func BuildGraph(msgs []*models.DialogueMessage) *Graph {
	g := &Graph{
		nodes:       make(map[int64]*models.DialogueMessage, len(msgs)),
		order:       make([]*models.DialogueMessage, 0, len(msgs)),
		out:         make(map[int64][]Edge, len(msgs)),
		hasIncoming: make(map[int64]bool),
	}
	for _, m := range msgs {
		g.nodes[m.ID] = m
		g.order = append(g.order, m)
	}
	sort.SliceStable(g.order, func(i, j int) bool {
		if g.order[i].OrderIndex != g.order[j].OrderIndex {
			return g.order[i].OrderIndex < g.order[j].OrderIndex
		}
		return g.order[i].ID < g.order[j].ID
	})
	for _, m := range msgs {
		for _, opt := range m.Payload.ReplyOptions {
			e := Edge{Label: opt.Text, DelaySeconds: opt.DelaySeconds}
			if target, ok := g.nodes[opt.NextMessageID]; ok {
				e.Target = target
				if target.ID != m.ID {
					g.hasIncoming[target.ID] = true
				}
			}
			g.out[m.ID] = append(g.out[m.ID], e)
		}
	}
	return g
}

// Node returns the message with the given id, or nil.
func (g *Graph) Node(id int64) *models.DialogueMessage {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Choices returns the live out-edges of a node: options that carry a
// resolvable target. These are the edges offered to the player at a branch.
func (g *Graph) Choices(id int64) []Edge {
	var live []Edge
	for _, e := range g.out[id] {
		if e.Target != nil {
			live = append(live, e)
		}
	}
	return live
}

// Entry selects the thread's entry node: a message no other message's
// reply option points at, lowest order index winning ties. When every node
// has an incoming edge (authored cycles), the lowest-ordered message of the
// whole thread is the fallback. Returns nil only for an empty thread.
func (g *Graph) Entry() *models.DialogueMessage {
	for _, m := range g.order {
		if !g.hasIncoming[m.ID] {
			return m
		}
	}
	if len(g.order) > 0 {
		return g.order[0]
	}
	return nil
}
