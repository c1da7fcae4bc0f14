// ABOUTME: Builds the three-level roll-up tree from a flat list of account codes
// ABOUTME: Pure function; group order follows first sight in the (sorted) input

package hierarchy

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/2389/coa-mirror/internal/store"
)

// Node is one entry in the roll-up tree.
type Node struct {
	Code       string          `json:"code"`
	Label      string          `json:"label"`
	Level      Level           `json:"level"`
	LevelLabel string          `json:"levelLabel"`
	TotalDebit decimal.Decimal `json:"totalDebit"`
	Children   []*Node         `json:"children"`
}

// orderedGroups keeps nodes by key and remembers insertion order.
type orderedGroups struct {
	index map[string]*Node
	order []*Node
}

func newOrderedGroups() *orderedGroups {
	return &orderedGroups{index: make(map[string]*Node)}
}

// ensure returns the node for code, creating it on first sight.
func (g *orderedGroups) ensure(code string, level Level, labels Labels) (*Node, bool) {
	if n, ok := g.index[code]; ok {
		return n, false
	}
	n := newNode(code, level, decimal.Zero, labels)
	g.index[code] = n
	g.order = append(g.order, n)
	return n, true
}

func newNode(code string, level Level, debit decimal.Decimal, labels Labels) *Node {
	return &Node{
		Code:       code,
		Label:      code,
		Level:      level,
		LevelLabel: labels.For(level),
		TotalDebit: debit,
		Children:   []*Node{},
	}
}

// Build groups records into MainGroup > SubGroup > DetailAccount by splitting
// codes on ".". One segment yields a MainGroup only, two segments add a
// SubGroup, and three or more add a DetailAccount leaf under the SubGroup
// formed by the first two segments. Group totals are the sum of their
// children and are computed after grouping. Records whose code is empty or
// has an empty segment are ignored. A nil labels uses LabelsEN.
func Build(records []store.AccountRecord, labels Labels) []*Node {
	if labels == nil {
		labels = LabelsEN
	}

	mains := newOrderedGroups()
	subs := make(map[string]*orderedGroups)

	for _, rec := range records {
		parts := strings.Split(rec.Code, ".")
		if !validSegments(parts) {
			continue
		}

		main, created := mains.ensure(parts[0], MainGroup, labels)
		if created {
			subs[main.Code] = newOrderedGroups()
		}
		if len(parts) < 2 {
			continue
		}

		sub, _ := subs[main.Code].ensure(parts[0]+"."+parts[1], SubGroup, labels)
		if len(parts) < 3 {
			continue
		}

		sub.Children = append(sub.Children, newNode(rec.Code, DetailAccount, rec.TotalDebit, labels))
	}

	roots := make([]*Node, 0, len(mains.order))
	for _, main := range mains.order {
		main.Children = append(main.Children, subs[main.Code].order...)
		rollUp(main)
		roots = append(roots, main)
	}
	return roots
}

// rollUp sets every group's total to the sum of its children.
func rollUp(n *Node) decimal.Decimal {
	if n.Level == DetailAccount {
		return n.TotalDebit
	}
	total := decimal.Zero
	for _, child := range n.Children {
		total = total.Add(rollUp(child))
	}
	n.TotalDebit = total
	return total
}

func validSegments(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return len(parts) > 0
}

// Total sums the MainGroup totals.
func Total(roots []*Node) decimal.Decimal {
	total := decimal.Zero
	for _, n := range roots {
		total = total.Add(n.TotalDebit)
	}
	return total
}

// Walk visits every node depth-first, parents before children.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}

// Count returns the number of nodes in the tree.
func Count(roots []*Node) int {
	count := 0
	Walk(roots, func(*Node, int) { count++ })
	return count
}
