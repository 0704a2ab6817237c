package view

import (
	"fmt"

	"github.com/hexprov/hexprov/internal/trace"
)

// node is one tree-pane row candidate. Identity is the action pointer, which
// is stable for the lifetime of the loaded trace.
type node struct {
	act    *trace.Action
	parent *node
	depth  int
}

func (n *node) isSpan() bool { return n.act.Kind == trace.KindSpan }

// label renders the row text without selection styling.
func (n *node) label() string {
	switch n.act.Kind {
	case trace.KindRead:
		return fmt.Sprintf("Read %d", n.act.Length)
	case trace.KindSeek:
		return fmt.Sprintf("Seek -> %d", n.act.Target)
	default:
		return n.act.Name
	}
}

// flatten lists the whole tree in pre-order, root included.
func flatten(root *trace.Action) []*node {
	var nodes []*node
	var walk func(act *trace.Action, parent *node, depth int)
	walk = func(act *trace.Action, parent *node, depth int) {
		n := &node{act: act, parent: parent, depth: depth}
		nodes = append(nodes, n)
		if act.Kind == trace.KindSpan {
			for _, child := range act.Actions {
				walk(child, n, depth+1)
			}
		}
	}
	if root != nil {
		walk(root, nil, 0)
	}
	return nodes
}

// visibleRows filters the pre-order list down to rows whose ancestors are all
// expanded. Collapse state lives outside the trace; it never affects index
// queries.
func visibleRows(nodes []*node, collapsed map[*trace.Action]bool) []*node {
	rows := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		hidden := false
		for p := n.parent; p != nil; p = p.parent {
			if collapsed[p.act] {
				hidden = true
				break
			}
		}
		if !hidden {
			rows = append(rows, n)
		}
	}
	return rows
}
