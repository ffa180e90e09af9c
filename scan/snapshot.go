package scan

// SignalValue is one committed signal's current reading, named for display
// rather than by its internal dense ID.
type SignalValue struct {
	Name   string
	Value  int
	Analog bool
}

// Snapshot returns every declared signal's committed value, for a UI or log
// line to render without reaching into the engine's internal buffers.
func (e *Engine) Snapshot() []SignalValue {
	out := make([]SignalValue, 0, len(e.prog.SymbolToSignal))
	for name, id := range e.prog.SymbolToSignal {
		out = append(out, SignalValue{
			Name:   name,
			Value:  e.cur[id],
			Analog: e.prog.IsAnalog(id),
		})
	}
	return out
}

// NodeState is one node's current runtime state, for a debug trace view.
type NodeState struct {
	Name    string
	Kind    string
	Line    int
	Output  bool
	Elapsed float64
	CV      int
}

// NodeTrace returns a snapshot of every non-synthetic node's current
// runtime state in evaluation order.
func (e *Engine) NodeTrace() []NodeState {
	out := make([]NodeState, 0, len(e.prog.Nodes))
	for _, idx := range e.seq {
		node := &e.prog.Nodes[idx]
		if node.IsSynthetic() {
			continue
		}
		st := &e.states[idx]
		ns := NodeState{
			Name:    node.Name,
			Kind:    node.Kind.String(),
			Line:    node.Line,
			Elapsed: st.elapsed,
		}
		if len(node.Outputs) > 0 {
			ns.Output = e.cur[node.Outputs[0]] != 0
		}
		if node.CVOutput >= 0 {
			ns.CV = e.cur[node.CVOutput]
		}
		out = append(out, ns)
	}
	return out
}
