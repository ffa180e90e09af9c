package scan

import "github.com/kavik-labs/plcsim/lang"

// SetMomentary stages a momentary BTN's pressed state, effective from the
// next commit barrier. Unknown names are a silent no-op, matching how a
// UI keeps sending press/release events for buttons that may not exist in
// whatever program happens to be loaded.
func (e *Engine) SetMomentary(name string, down bool) {
	if idx, ok := e.btnIndex(name); ok {
		e.staging.setMomentary(idx, down)
	}
}

// ToggleLatch stages a flip of a latching BTN's held state.
func (e *Engine) ToggleLatch(name string) {
	if idx, ok := e.btnIndex(name); ok {
		e.staging.toggleLatch(idx, e.states[idx].latched)
	}
}

// IsButtonPressed reports a BTN's momentary state: the staged value if one
// is pending, otherwise the committed one.
func (e *Engine) IsButtonPressed(name string) bool {
	idx, ok := e.btnIndex(name)
	if !ok {
		return false
	}
	return e.staging.readMomentary(idx, e.states[idx].momentary)
}

// IsButtonLatched reports a BTN's latch state: the staged value if one is
// pending, otherwise the committed one.
func (e *Engine) IsButtonLatched(name string) bool {
	idx, ok := e.btnIndex(name)
	if !ok {
		return false
	}
	return e.staging.readLatch(idx, e.states[idx].latched)
}

func (e *Engine) btnIndex(name string) (int, bool) {
	idx, ok := e.nameIndex[name]
	if !ok || e.prog.Nodes[idx].Kind != lang.Btn {
		return 0, false
	}
	return idx, true
}

// SetSignal stages a direct boolean (0/1) write to a signal by name,
// effective from the next commit barrier. Used by the fieldbus bridge for
// INPUT_i, by UI toggles and by scripted test harnesses; analog values go
// through SetAnalog. Unknown names are a silent no-op.
func (e *Engine) SetSignal(name string, v bool) {
	if id, ok := e.prog.SymbolToSignal[name]; ok {
		e.staging.setSignal(id, v)
	}
}

// ToggleSignal stages a flip of a boolean signal's value: the staged value
// if one is pending, otherwise the committed one.
func (e *Engine) ToggleSignal(name string) {
	if id, ok := e.prog.SymbolToSignal[name]; ok {
		e.staging.toggleSignal(id, e.cur[id] != 0)
	}
}

// SetAnalog stages a direct write of an integer value onto an analog
// signal, bypassing the boolean 0/1 coercion SetSignal applies.
func (e *Engine) SetAnalog(name string, v int) {
	if id, ok := e.prog.SymbolToSignal[name]; ok {
		e.staging.setValue(id, v)
	}
}

// SignalValue returns a boolean signal's value by name: the staged value
// if one is pending, otherwise the committed one.
func (e *Engine) SignalValue(name string) bool {
	id, ok := e.prog.SymbolToSignal[name]
	if !ok {
		return false
	}
	return e.staging.readSignal(id, e.cur[id] != 0)
}

// AnalogValue returns an analog or constant signal's integer value by
// name: the staged value if one is pending, otherwise the committed one.
func (e *Engine) AnalogValue(name string) int {
	id, ok := e.prog.SymbolToSignal[name]
	if !ok {
		return 0
	}
	return e.staging.readValue(id, e.cur[id])
}

// SetPresetTime overrides a TON/TOF node's preset, in seconds, effective
// immediately (not staged: presets are engineering parameters, not scan
// inputs). Unknown names or names that aren't TON/TOF nodes are a silent
// no-op.
func (e *Engine) SetPresetTime(name string, seconds float64) {
	idx, ok := e.nameIndex[name]
	if !ok {
		return
	}
	k := e.prog.Nodes[idx].Kind
	if k != lang.Ton && k != lang.Tof {
		return
	}
	e.states[idx].presetTime = seconds
}

// SetPresetCount overrides a CTU/CTD node's preset count, effective
// immediately.
func (e *Engine) SetPresetCount(name string, count int) {
	idx, ok := e.nameIndex[name]
	if !ok {
		return
	}
	k := e.prog.Nodes[idx].Kind
	if k != lang.Ctu && k != lang.Ctd {
		return
	}
	e.states[idx].presetCount = count
}
