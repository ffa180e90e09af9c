package scan_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kavik-labs/plcsim/lang"
	"github.com/kavik-labs/plcsim/scan"
	"github.com/kavik-labs/plcsim/topo"
)

func mustEngine(t *testing.T, src string) *scan.Engine {
	t.Helper()
	prog, err := lang.ParseReader("test", strings.NewReader(src))
	require.NoError(t, err)
	order := topo.SourceOrder(prog)
	require.True(t, order.Covers(len(prog.Nodes)))
	return scan.NewEngine(prog, order)
}

// tick commits any staged writes and runs exactly one full scan at a 1Hz
// rate, so dt is always one second — the pace every worked scenario in
// this file is written against.
func tick(e *scan.Engine) {
	e.Update(time.Second, 1, scan.FastScan, true, false)
}

func TestTwoInputAND(t *testing.T) {
	e := mustEngine(t, `
IN A, B
OUT Y
AND g(A,B) -> Y
`)
	e.SetSignal("A", true)
	e.SetSignal("B", false)
	tick(e)
	require.False(t, e.SignalValue("Y"))

	e.SetSignal("B", true)
	tick(e)
	require.True(t, e.SignalValue("Y"))

	e.SetSignal("A", false)
	tick(e)
	require.False(t, e.SignalValue("Y"))
}

func TestCounterSaturation(t *testing.T) {
	e := mustEngine(t, `
IN cu
IN r
OUT q
CTU c(1, cu, r) -> q, cv
`)
	// cu toggles every scan, so a rising edge only occurs on every other
	// scan; loop well past 2*32767 to guarantee saturation is reached.
	for i := 0; i < 70000; i++ {
		e.SetSignal("cu", i%2 == 0)
		e.SetSignal("r", false)
		tick(e)
	}
	require.Equal(t, 32767, e.AnalogValue("cv"))

	d := mustEngine(t, `
IN cd
IN load
OUT q
CTD c(0, cd, load) -> q, cv
`)
	for i := 0; i < 5; i++ {
		d.SetSignal("cd", i%2 == 0)
		d.SetSignal("load", false)
		tick(d)
	}
	require.Equal(t, 0, d.AnalogValue("cv"))
}

func TestTimerElapsedNeverDecreasesWhileHigh(t *testing.T) {
	// Elapsed isn't directly observable, but monotonicity implies the
	// output only ever transitions false->true while the input stays
	// high and dt stays positive, never true->false->true within one
	// continuous high run.
	e := mustEngine(t, `
IN x
OUT q
TON t("5s", x) -> q
`)
	var sawTrue bool
	for i := 0; i < 8; i++ {
		e.SetSignal("x", true)
		tick(e)
		q := e.SignalValue("q")
		if sawTrue {
			require.True(t, q, "scan %d: output dropped after latching without input going low", i)
		}
		sawTrue = sawTrue || q
	}
	require.True(t, sawTrue)
}

func TestGates(t *testing.T) {
	e := mustEngine(t, `
IN a
IN b
OUT q_and
OUT q_or
OUT q_xor
OUT q_not
AND g1(a, b) -> q_and
OR g2(a, b) -> q_or
XOR g3(a, b) -> q_xor
NOT g4(a) -> q_not
`)

	cases := []struct{ a, b, and, or, xor, not bool }{
		{false, false, false, false, false, true},
		{true, false, false, true, true, false},
		{false, true, false, true, true, true},
		{true, true, true, true, false, false},
	}
	for _, c := range cases {
		e.SetSignal("a", c.a)
		e.SetSignal("b", c.b)
		tick(e)
		require.Equal(t, c.and, e.SignalValue("q_and"))
		require.Equal(t, c.or, e.SignalValue("q_or"))
		require.Equal(t, c.xor, e.SignalValue("q_xor"))
		require.Equal(t, c.not, e.SignalValue("q_not"))
	}
}

func TestRisingEdgeDetector(t *testing.T) {
	e := mustEngine(t, `
IN clk
OUT p
PS edge(clk) -> p
`)
	clk := []bool{false, true, true, true, false, true}
	want := []bool{false, true, false, false, false, true}
	for i, v := range clk {
		e.SetSignal("clk", v)
		tick(e)
		require.Equalf(t, want[i], e.SignalValue("p"), "scan %d", i)
	}
}

func TestFallingEdgeDetector(t *testing.T) {
	e := mustEngine(t, `
IN clk
OUT p
NS edge(clk) -> p
`)
	clk := []bool{true, false, false, true, true, false}
	want := []bool{false, true, false, false, false, true}
	for i, v := range clk {
		e.SetSignal("clk", v)
		tick(e)
		require.Equalf(t, want[i], e.SignalValue("p"), "scan %d", i)
	}
}

func TestSRBistable(t *testing.T) {
	e := mustEngine(t, `
IN s
IN r
OUT q
SR b(s, r) -> q
`)
	type step struct{ s, r, q bool }
	steps := []step{
		{false, false, false},
		{true, false, true},
		{false, false, true},
		{false, true, false},
		{false, false, false},
		{true, true, true}, // set-dominant: both asserted still sets
	}
	for i, st := range steps {
		e.SetSignal("s", st.s)
		e.SetSignal("r", st.r)
		tick(e)
		require.Equalf(t, st.q, e.SignalValue("q"), "scan %d", i)
	}
}

func TestRSBistable(t *testing.T) {
	e := mustEngine(t, `
IN s
IN r
OUT q
RS b(s, r) -> q
`)
	e.SetSignal("s", true)
	tick(e)
	require.True(t, e.SignalValue("q"))

	// reset-dominant: both asserted resets, unlike SR's set-dominant case.
	e.SetSignal("s", true)
	e.SetSignal("r", true)
	tick(e)
	require.False(t, e.SignalValue("q"))
}

func TestOnDelayTimer(t *testing.T) {
	e := mustEngine(t, `
IN x
OUT q
TON t("2s", x) -> q
`)
	run := func(highScans int) []bool {
		var out []bool
		for i := 0; i < highScans; i++ {
			e.SetSignal("x", true)
			tick(e)
			out = append(out, e.SignalValue("q"))
		}
		return out
	}

	require.Equal(t, []bool{false, false, true}, run(3))

	e.SetSignal("x", false)
	tick(e)
	require.False(t, e.SignalValue("q"))

	// elapsed must have reset: running it high again takes the full delay.
	require.Equal(t, []bool{false, false, true}, run(3))
}

func TestOffDelayTimer(t *testing.T) {
	e := mustEngine(t, `
IN x
OUT q
TOF t("2s", x) -> q
`)
	seq := []bool{true, true, false, false, false}
	want := []bool{true, true, true, true, false}
	for i, v := range seq {
		e.SetSignal("x", v)
		tick(e)
		require.Equalf(t, want[i], e.SignalValue("q"), "scan %d", i)
	}
}

func TestUpCounter(t *testing.T) {
	e := mustEngine(t, `
IN cu
IN r
OUT q
CTU c(3, cu, r) -> q, cv
`)
	cu := []bool{false, true, false, true, false, true, false}
	wantCV := []int{0, 1, 1, 2, 2, 3, 3}
	wantQ := []bool{false, false, false, false, false, true, true}
	for i, v := range cu {
		e.SetSignal("cu", v)
		e.SetSignal("r", false)
		tick(e)
		require.Equalf(t, wantCV[i], e.AnalogValue("cv"), "scan %d cv", i)
		require.Equalf(t, wantQ[i], e.SignalValue("q"), "scan %d q", i)
	}

	e.SetSignal("r", true)
	tick(e)
	require.Equal(t, 0, e.AnalogValue("cv"))
	require.False(t, e.SignalValue("q"))
}

func TestDownCounter(t *testing.T) {
	e := mustEngine(t, `
IN cd
IN load
OUT q
CTD c(2, cd, load) -> q, cv
`)
	e.SetSignal("load", true)
	tick(e)
	require.Equal(t, 2, e.AnalogValue("cv"))
	require.False(t, e.SignalValue("q"))

	e.SetSignal("load", false)
	e.SetSignal("cd", true)
	tick(e)
	require.Equal(t, 1, e.AnalogValue("cv"))

	e.SetSignal("cd", false)
	tick(e)
	require.Equal(t, 1, e.AnalogValue("cv"))

	e.SetSignal("cd", true)
	tick(e)
	require.Equal(t, 0, e.AnalogValue("cv"))
	require.True(t, e.SignalValue("q"))
}

func TestComparators(t *testing.T) {
	e := mustEngine(t, `
AIN a
OUT lt
OUT gt
OUT eq
LT c1(a, 10) -> lt
GT c2(a, 10) -> gt
EQ c3(a, 10) -> eq
`)
	e.SetAnalog("a", 5)
	tick(e)
	require.True(t, e.SignalValue("lt"))
	require.False(t, e.SignalValue("gt"))
	require.False(t, e.SignalValue("eq"))

	e.SetAnalog("a", 10)
	tick(e)
	require.False(t, e.SignalValue("lt"))
	require.False(t, e.SignalValue("gt"))
	require.True(t, e.SignalValue("eq"))

	e.SetAnalog("a", 20)
	tick(e)
	require.False(t, e.SignalValue("lt"))
	require.True(t, e.SignalValue("gt"))
	require.False(t, e.SignalValue("eq"))
}

func TestButtonMomentaryAndLatch(t *testing.T) {
	e := mustEngine(t, `
OUT q
BTN start() -> q
`)
	require.False(t, e.IsButtonPressed("start"))

	e.SetMomentary("start", true)
	tick(e)
	require.True(t, e.SignalValue("q"))
	require.True(t, e.IsButtonPressed("start"))

	e.SetMomentary("start", false)
	tick(e)
	require.False(t, e.SignalValue("q"))

	e.ToggleLatch("start")
	tick(e)
	require.True(t, e.SignalValue("q"))
	require.True(t, e.IsButtonLatched("start"))

	e.ToggleLatch("start")
	tick(e)
	require.False(t, e.SignalValue("q"))
}

func TestInlineOperatorDesugaring(t *testing.T) {
	e := mustEngine(t, `
IN a
IN b
OUT q
AND g(a, NOT(b)) -> q
`)
	e.SetSignal("a", true)
	e.SetSignal("b", false)
	tick(e)
	require.True(t, e.SignalValue("q"))

	e.SetSignal("b", true)
	tick(e)
	require.False(t, e.SignalValue("q"))
}

func TestNestedInlineOperatorDesugaring(t *testing.T) {
	e := mustEngine(t, `
IN clk
OUT q
AND g(NOT(PS(clk))) -> q
`)
	// PS(clk) fires only the scan clk rises; NOT of that is true every
	// scan except the one immediately after a rising edge.
	seq := []bool{false, true, true, false, true}
	want := []bool{true, false, true, true, false}
	for i, v := range seq {
		e.SetSignal("clk", v)
		tick(e)
		require.Equalf(t, want[i], e.SignalValue("q"), "scan %d", i)
	}
}

func TestStagedWritesNeverAffectAnInFlightScan(t *testing.T) {
	e := mustEngine(t, `
IN a
OUT q1
OUT q2
AND g1(a) -> q1
AND g2(a) -> q2
`)
	// Step g1 alone, then stage a write mid-scan, then step g2 to finish
	// the scan. g2 evaluates strictly after the write is staged but must
	// still see the pre-write value: staged writes only merge into next
	// at the following scan's commit barrier, never mid-scan.
	e.Update(time.Second, 1, scan.SlowStep, true, false)
	e.SetSignal("a", true)
	e.Update(time.Second, 1, scan.SlowStep, true, false)

	require.False(t, e.SignalValue("q1"))
	require.False(t, e.SignalValue("q2"))

	tick(e)
	require.True(t, e.SignalValue("q1"))
	require.True(t, e.SignalValue("q2"))
}

func TestSnapshotReflectsCommittedValues(t *testing.T) {
	e := mustEngine(t, `
IN a
OUT q
AND g(a, a) -> q
`)
	e.SetSignal("a", true)
	tick(e)

	var found bool
	for _, sv := range e.Snapshot() {
		if sv.Name == "q" {
			found = true
			require.Equal(t, 1, sv.Value)
		}
	}
	require.True(t, found, "expected q in snapshot")
}

func TestNodeTraceExcludesSyntheticNodes(t *testing.T) {
	e := mustEngine(t, `
IN a
OUT q
AND g(NOT(a)) -> q
`)
	tick(e)
	trace := e.NodeTrace()
	require.Len(t, trace, 1)
	require.Equal(t, "g", trace[0].Name)
}

func TestValidateReportsInvalidTopology(t *testing.T) {
	prog, err := lang.ParseReader("test", strings.NewReader("# empty program\n"))
	require.NoError(t, err)
	order := topo.SourceOrder(prog)
	e := scan.NewEngine(prog, order)

	verr := e.Validate()
	require.Error(t, verr)
	require.ErrorIs(t, verr, scan.ErrInvalidTopology)
	require.False(t, e.IsValid())
}

func TestInvalidTopologyRejectsEmptyProgram(t *testing.T) {
	prog, err := lang.ParseReader("test", strings.NewReader("# empty\n"))
	require.NoError(t, err)
	order := topo.SourceOrder(prog)
	e := scan.NewEngine(prog, order)
	require.False(t, e.IsValid())
}

func TestMissingArrowIsAParseError(t *testing.T) {
	_, err := lang.ParseReader("test", strings.NewReader("AND g(a, b)\n"))
	require.Error(t, err)
	var perr *lang.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, perr.Line)
}
