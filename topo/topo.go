// Package topo computes the per-scan node evaluation order for a parsed
// program. It offers two policies: SourceOrder (the recommended default,
// used by every example program) and Kahn (an optional topological
// ordering), grounded on the original simulator's Graph.cpp producer-map +
// in-degree + line-ordered algorithm.
package topo

import (
	"container/heap"

	"github.com/kavik-labs/plcsim/lang"
)

// Order is the result of resolving an evaluation order for a program's
// nodes: a permutation of node indices plus diagnostics about the graph's
// shape.
type Order struct {
	sequence  []int
	forward   bool
	cycles    bool
	nodeCount int
}

// Sequence returns the node indices in the order they should be evaluated
// during one scan.
func (o *Order) Sequence() []int { return o.sequence }

// HasForwardReferences reports whether any node reads a signal produced by
// a node that appears later in Sequence (informational only; forward
// references are legal and simply introduce a one-scan lag).
func (o *Order) HasForwardReferences() bool { return o.forward }

// HasCycles reports whether the dependency graph contains a cycle. Only
// meaningful for Kahn(); SourceOrder never reports cycles since it does not
// attempt to resolve dependencies.
func (o *Order) HasCycles() bool { return o.cycles }

// Covers reports whether Sequence visits every node index in [0, n).
func (o *Order) Covers(n int) bool {
	return o.nodeCount == n && len(o.sequence) == n
}

// SourceOrder evaluates nodes in the exact order they appear in the source
// file. This is the recommended, calibrated-against policy: it gives a PLC
// author a WYSIWYG mental model (the editor shows exactly the order the
// scan executes) at the cost of a one-scan lag on forward references, which
// this function detects and reports via HasForwardReferences.
func SourceOrder(p *lang.Program) *Order {
	n := len(p.Nodes)
	seq := make([]int, n)
	for i := range seq {
		seq[i] = i
	}

	producedAt := make(map[int]int, n) // signal id -> earliest producing node index
	for i, node := range p.Nodes {
		for _, o := range node.Outputs {
			if _, ok := producedAt[o]; !ok {
				producedAt[o] = i
			}
		}
		if node.CVOutput >= 0 {
			if _, ok := producedAt[node.CVOutput]; !ok {
				producedAt[node.CVOutput] = i
			}
		}
	}

	forward := false
	for i, node := range p.Nodes {
		for _, in := range node.Inputs {
			if prod, ok := producedAt[in]; ok && prod > i {
				forward = true
			}
		}
	}

	return &Order{sequence: seq, forward: forward, nodeCount: n}
}

// Kahn produces a dependency order: a node only appears after every node
// that produces one of its inputs. BTN nodes are treated as sources (their
// inputs are user-controlled, not other nodes' outputs) and never block
// anything. Ties are broken by source line, then by node index, using a
// min-heap so the result is deterministic. Any nodes left over once no more
// nodes have satisfied dependencies form a cycle; they are appended in
// source-line order at the tail and HasCycles reports true.
func Kahn(p *lang.Program) *Order {
	n := len(p.Nodes)
	if n == 0 {
		return &Order{nodeCount: 0}
	}

	producers := make(map[int][]int, n*2)
	for i, node := range p.Nodes {
		for _, o := range node.Outputs {
			producers[o] = append(producers[o], i)
		}
		if node.CVOutput >= 0 {
			producers[node.CVOutput] = append(producers[node.CVOutput], i)
		}
	}

	adj := make([][]int, n)
	inDegree := make([]int, n)
	for i, node := range p.Nodes {
		if node.Kind == lang.Btn {
			continue
		}
		for _, in := range node.Inputs {
			for _, prod := range producers[in] {
				if prod == i {
					continue
				}
				adj[prod] = append(adj[prod], i)
				inDegree[i]++
			}
		}
	}

	ready := &nodeHeap{p: p}
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	seq := make([]int, 0, n)
	scheduled := make([]bool, n)
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		seq = append(seq, u)
		scheduled[u] = true
		for _, v := range adj[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	cycles := len(seq) < n
	if cycles {
		tail := &nodeHeap{p: p}
		for i := 0; i < n; i++ {
			if !scheduled[i] {
				heap.Push(tail, i)
			}
		}
		for tail.Len() > 0 {
			seq = append(seq, heap.Pop(tail).(int))
		}
	}

	return &Order{sequence: seq, cycles: cycles, nodeCount: n}
}

// nodeHeap is a min-heap over node indices ordered by (source line, index),
// matching the priority used by the original topological sort.
type nodeHeap struct {
	p    *lang.Program
	data []int
}

func (h *nodeHeap) Len() int { return len(h.data) }
func (h *nodeHeap) Less(i, j int) bool {
	a, b := h.data[i], h.data[j]
	la, lb := h.p.Nodes[a].Line, h.p.Nodes[b].Line
	if la != lb {
		return la < lb
	}
	return a < b
}
func (h *nodeHeap) Swap(i, j int)      { h.data[i], h.data[j] = h.data[j], h.data[i] }
func (h *nodeHeap) Push(x interface{}) { h.data = append(h.data, x.(int)) }
func (h *nodeHeap) Pop() interface{} {
	old := h.data
	n := len(old)
	v := old[n-1]
	h.data = old[:n-1]
	return v
}
