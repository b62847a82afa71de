// Package replytree turns a flat list of replies into a depth-annotated
// pre-order sequence for indented display.
package replytree

import (
	"sort"

	"agora/internal/models"
)

// DefaultMaxIndent caps visual indentation in thread views.
const DefaultMaxIndent = 3

// Entry is a reply with its nesting depth. Roots have depth 0.
type Entry struct {
	Reply models.Reply `json:"reply"`
	Depth int          `json:"depth"`
}

type node struct {
	reply    models.Reply
	children []*node
}

// Build orders replies oldest first and nests each one under its parent.
//
// Ties on CreatedAt are broken by ID, so any permutation of the same input
// yields the same output. A reply is attached to its parent only when the
// parent sorts before it; missing, self, forward or cyclic parents make the
// reply a root. Nothing is dropped and Build never fails.
func Build(replies []models.Reply) []Entry {
	if len(replies) == 0 {
		return []Entry{}
	}

	sorted := make([]models.Reply, len(replies))
	copy(sorted, replies)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	placed := make(map[uint]*node, len(sorted))
	roots := make([]*node, 0, len(sorted))
	for _, r := range sorted {
		n := &node{reply: r}
		if r.ParentReplyID != nil {
			if parent, ok := placed[*r.ParentReplyID]; ok {
				parent.children = append(parent.children, n)
				registerFirst(placed, n)
				continue
			}
		}
		roots = append(roots, n)
		registerFirst(placed, n)
	}

	return flatten(roots, len(sorted))
}

// registerFirst keeps the earliest reply for a duplicated ID as the parent target.
func registerFirst(placed map[uint]*node, n *node) {
	if _, exists := placed[n.reply.ID]; !exists {
		placed[n.reply.ID] = n
	}
}

type frame struct {
	n     *node
	depth int
}

// flatten walks the forest depth-first in pre-order without recursion.
func flatten(roots []*node, size int) []Entry {
	out := make([]Entry, 0, size)
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{n: roots[i]})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, Entry{Reply: top.n.reply, Depth: top.depth})
		for i := len(top.n.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: top.n.children[i], depth: top.depth + 1})
		}
	}
	return out
}

// Indent clamps depth for display. It never changes the depth itself.
func Indent(depth, maxIndent int) int {
	if maxIndent < 0 {
		maxIndent = DefaultMaxIndent
	}
	if depth > maxIndent {
		return maxIndent
	}
	if depth < 0 {
		return 0
	}
	return depth
}
