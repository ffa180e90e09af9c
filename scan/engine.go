// Package scan implements the double-buffered scan-cycle evaluator: it
// commits staged UI/fieldbus writes, evaluates every node once per scan in
// a fixed order, and swaps signal buffers. It is grounded on the original
// simulator's Sim.cpp update loop, adapted from single hardcoded stepping
// into two explicit paces, whole-scan and single-node.
package scan

import (
	"math"
	"time"

	"github.com/kavik-labs/plcsim/lang"
	"github.com/kavik-labs/plcsim/topo"
)

// Mode selects how Update paces node evaluation across real time.
type Mode int

const (
	// FastScan executes a whole scan (every node, in order) each time the
	// accumulator crosses one scan period. Suited to running a program at
	// full speed with no per-node visualization.
	FastScan Mode = iota
	// SlowStep advances exactly one node each time the accumulator crosses
	// one scan period, exposing the node currently executing for UI
	// highlighting. A full scan still completes once every node in the
	// order has been stepped.
	SlowStep
)

// RateFromSlider maps a 0..1 UI slider position onto a 0.5..2000Hz scan
// rate. slider is clamped to [0,1] first.
func RateFromSlider(slider float64) float64 {
	if slider < 0 {
		slider = 0
	} else if slider > 1 {
		slider = 1
	}
	return 0.5 * math.Pow(4000, slider)
}

// nodeState is the persistent, per-node state carried across scans: timer
// accumulators, counter values, and edge memory. Indexed by node index,
// parallel to Program.Nodes.
type nodeState struct {
	elapsed      float64 // seconds accumulated toward PresetTime, TON/TOF
	status       bool    // latched TON/TOF output
	presetTime   float64 // seconds, overridable at runtime
	presetCount  int     // overridable at runtime, CTU/CTD
	currentCount int      // CTU/CTD current value (CV)
	prevEdge     bool    // PS/NS input memory, CTU/CTD clock memory
	momentary    bool    // BTN momentary sub-state
	latched      bool    // BTN latch sub-state
}

// Engine runs one Program's scan cycle. It is not safe for concurrent use;
// callers serialize all calls (the CLI driver owns one Engine per loaded
// program).
type Engine struct {
	prog  *lang.Program
	order *topo.Order
	seq   []int

	cur, next []int // signal values, dense by signal ID

	states    []nodeState
	nameIndex map[string]int

	staging *stagingArea

	acc      float64
	stepping bool
	stepIdx  int

	curLine       int
	lastVisible   int // node index of the last non-synthetic node evaluated
}

// NewEngine builds an Engine for prog using the given evaluation order.
// Constant signals are seeded into both buffers; CTD counters with a
// hard-coded preset start loaded at that preset, matching a physical
// down-counter's power-on state.
func NewEngine(prog *lang.Program, order *topo.Order) *Engine {
	n := prog.SignalCount()
	e := &Engine{
		prog:        prog,
		order:       order,
		seq:         order.Sequence(),
		cur:         make([]int, n),
		next:        make([]int, n),
		states:      make([]nodeState, len(prog.Nodes)),
		nameIndex:   make(map[string]int, len(prog.Nodes)),
		staging:     newStagingArea(),
		curLine:     -1,
		lastVisible: -1,
	}
	for id, v := range prog.Constants {
		e.cur[id] = v
		e.next[id] = v
	}
	for i := range prog.Nodes {
		node := &prog.Nodes[i]
		e.nameIndex[node.Name] = i
		st := &e.states[i]
		if node.HasPresetTime {
			st.presetTime = node.PresetTime
		} else {
			st.presetTime = defaultPresetSeconds
		}
		if node.HasPresetCount {
			st.presetCount = node.PresetCount
			if node.Kind == lang.Ctd {
				st.currentCount = node.PresetCount
			}
		}
	}
	return e
}

const defaultPresetSeconds = 3.0

// IsValid reports whether the program has at least one node and the
// evaluation order covers every node. An engine built from an invalid
// program still functions but Update is a no-op; the CLI reports this
// state to the operator instead of running a partial scan. See Validate
// for the reason behind a false result.
func (e *Engine) IsValid() bool {
	return e.Validate() == nil
}

// Program returns the program this engine is executing.
func (e *Engine) Program() *lang.Program { return e.prog }

// CurrentLine returns the 1-based source line of the user-written node
// last evaluated (the one a UI should highlight), or -1 before any has
// been. A whole-scan pace updates it when the scan ends; single-node
// stepping updates it at each non-synthetic node.
func (e *Engine) CurrentLine() int { return e.curLine }

// Update advances the engine according to mode, rateHz and running.
// stepOnce forces exactly one node's worth of progress regardless of mode
// or rate, using dt directly instead of the paced period; it is meant for
// a UI's explicit single-step button and is independent of whether the
// scan is otherwise running.
func (e *Engine) Update(dt time.Duration, rateHz float64, mode Mode, running, stepOnce bool) {
	if !e.IsValid() {
		return
	}
	if stepOnce {
		e.stepOneNode(dt.Seconds())
		return
	}
	if !running || rateHz <= 0 {
		return
	}
	e.acc += dt.Seconds()
	period := 1 / rateHz
	switch mode {
	case FastScan:
		for e.acc >= period {
			e.scanOnceFull(period)
			e.acc -= period
		}
	case SlowStep:
		for e.acc >= period {
			e.stepOneNode(period)
			e.acc -= period
		}
	}
}

// beginScan commits staged inputs and snapshots next from cur, establishing
// the commit barrier for this scan. It must run exactly once at the start
// of each scan, before any node evaluates.
func (e *Engine) beginScan() {
	for idx, v := range e.staging.momentary {
		e.states[idx].momentary = v
	}
	for idx, v := range e.staging.latch {
		e.states[idx].latched = v
	}
	clear(e.staging.latch)
	for id, v := range e.staging.signals {
		if id >= 0 && id < len(e.cur) {
			e.cur[id] = v
		}
	}
	clear(e.staging.signals)

	copy(e.next, e.cur)
	e.lastVisible = -1
}

// endScan swaps cur and next, making this scan's outputs the next scan's
// committed inputs, and resets stepping state.
func (e *Engine) endScan() {
	e.cur, e.next = e.next, e.cur
	if e.lastVisible >= 0 {
		e.curLine = e.prog.Nodes[e.lastVisible].Line
	}
	e.stepping = false
	e.stepIdx = 0
}

func (e *Engine) scanOnceFull(dt float64) {
	e.beginScan()
	for _, idx := range e.seq {
		e.evaluate(idx, dt)
		if !e.prog.Nodes[idx].IsSynthetic() {
			e.lastVisible = idx
		}
	}
	e.endScan()
}

// stepOneNode advances exactly one node in the evaluation order. If no scan
// is in progress it begins one first. Completing the last node in the
// order ends the scan just as scanOnceFull would.
func (e *Engine) stepOneNode(dt float64) {
	if !e.stepping {
		e.beginScan()
		e.stepping = true
		e.stepIdx = 0
	}
	idx := e.seq[e.stepIdx]
	e.evaluate(idx, dt)
	if !e.prog.Nodes[idx].IsSynthetic() {
		e.lastVisible = idx
		e.curLine = e.prog.Nodes[idx].Line
	}
	e.stepIdx++
	if e.stepIdx >= len(e.seq) {
		e.endScan()
	}
}
