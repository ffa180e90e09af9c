package scan

import "github.com/kavik-labs/plcsim/lang"

// evaluate computes node idx's output(s) from e.next (which may already
// hold values written earlier in this same scan by preceding nodes) and
// writes the result(s) back into e.next. dt is this scan's duration in
// seconds, used by TON/TOF; 0 disables timer accumulation without
// disturbing level-driven transitions (TOF going true, TON's low-input
// reset).
//
// TON and TOF check their elapsed accumulator against the preset before
// adding this scan's dt, not after: threshold and worked-example scan
// counts only line up under check-then-accumulate. The prose description
// of "add dt, then compare" describes the same steady-state behavior but
// off by one scan at the transition; check-then-accumulate is what this
// engine implements.
func (e *Engine) evaluate(idx int, dt float64) {
	node := &e.prog.Nodes[idx]
	st := &e.states[idx]

	switch node.Kind {
	case lang.And:
		out := true
		for _, s := range node.Inputs {
			out = out && e.bool(s)
		}
		e.setOut(node, out)

	case lang.Or:
		out := false
		for _, s := range node.Inputs {
			out = out || e.bool(s)
		}
		e.setOut(node, out)

	case lang.Xor:
		count := 0
		for _, s := range node.Inputs {
			if e.bool(s) {
				count++
			}
		}
		e.setOut(node, count%2 == 1)

	case lang.Not:
		e.setOut(node, !e.bool(node.Inputs[0]))

	case lang.Ps:
		in := e.bool(node.Inputs[0])
		out := in && !st.prevEdge
		st.prevEdge = in
		e.setOut(node, out)

	case lang.Ns:
		in := e.bool(node.Inputs[0])
		out := !in && st.prevEdge
		st.prevEdge = in
		e.setOut(node, out)

	case lang.Sr:
		s, r := e.bool(node.Inputs[0]), e.bool(node.Inputs[1])
		out := e.hold(node)
		switch {
		case s:
			out = true
		case r:
			out = false
		}
		e.setOut(node, out)

	case lang.Rs:
		s, r := e.bool(node.Inputs[0]), e.bool(node.Inputs[1])
		out := e.hold(node)
		switch {
		case r:
			out = false
		case s:
			out = true
		}
		e.setOut(node, out)

	case lang.Ton:
		in := e.bool(node.Inputs[0])
		if in {
			if dt > 0 && !st.status {
				if st.elapsed >= st.presetTime {
					st.status = true
					st.elapsed = 0
				} else {
					st.elapsed += dt
				}
			}
		} else {
			st.elapsed = 0
			st.status = false
		}
		e.setOut(node, st.status)

	case lang.Tof:
		in := e.bool(node.Inputs[0])
		if in {
			st.elapsed = 0
			st.status = true
		} else if st.status && dt > 0 {
			if st.elapsed >= st.presetTime {
				st.status = false
				st.elapsed = 0
			} else {
				st.elapsed += dt
			}
		}
		e.setOut(node, st.status)

	case lang.Ctu:
		clk, reset := e.bool(node.Inputs[0]), e.bool(node.Inputs[1])
		if reset {
			st.currentCount = 0
		} else if clk && !st.prevEdge {
			if st.currentCount < 32767 {
				st.currentCount++
			}
		}
		st.prevEdge = clk
		e.setOut(node, st.currentCount >= st.presetCount)
		e.setCV(node, st.currentCount)

	case lang.Ctd:
		clk, load := e.bool(node.Inputs[0]), e.bool(node.Inputs[1])
		if load {
			st.currentCount = st.presetCount
		} else if clk && !st.prevEdge {
			if st.currentCount > 0 {
				st.currentCount--
			}
		}
		st.prevEdge = clk
		e.setOut(node, st.currentCount <= 0)
		e.setCV(node, st.currentCount)

	case lang.Lt:
		e.setOut(node, e.value(node.Inputs[0]) < e.value(node.Inputs[1]))

	case lang.Gt:
		e.setOut(node, e.value(node.Inputs[0]) > e.value(node.Inputs[1]))

	case lang.Eq:
		e.setOut(node, e.value(node.Inputs[0]) == e.value(node.Inputs[1]))

	case lang.Btn:
		e.setOut(node, st.momentary || st.latched)
	}
}

func (e *Engine) bool(signal int) bool  { return e.next[signal] != 0 }
func (e *Engine) value(signal int) int  { return e.next[signal] }

// hold reads a bistable's own output signal before this call overwrites
// it, giving the "no change" branch of SR/RS its held-over value: either
// this scan's committed value, if no earlier node in the order already
// wrote it, or that earlier write.
func (e *Engine) hold(node *lang.Node) bool {
	if len(node.Outputs) == 0 {
		return false
	}
	return e.bool(node.Outputs[0])
}

func (e *Engine) setOut(node *lang.Node, v bool) {
	for _, s := range node.Outputs {
		if v {
			e.next[s] = 1
		} else {
			e.next[s] = 0
		}
	}
}

func (e *Engine) setCV(node *lang.Node, v int) {
	if node.CVOutput >= 0 {
		e.next[node.CVOutput] = v
	}
}
