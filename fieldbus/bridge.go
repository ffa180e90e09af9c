// Package fieldbus implements the Modbus/TCP master that exchanges a
// running program's reserved INPUT_i/OUTPUT_i/AINPUT_i/AOUTPUT_i signals
// with an external device's discrete inputs, coils, input registers and
// holding registers. It is grounded on the original simulator's
// ModbusManager, generalized to actually exercise the analog register
// counts that structure left as dead fields, and rebuilt against
// github.com/goburrow/modbus in place of libmodbus.
package fieldbus

import (
	"context"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"

	"github.com/kavik-labs/plcsim/scan"
)

// defaultTimeout bounds a sync call when ctx carries no deadline of its
// own, and bounds Connect. The underlying client has no context-aware API,
// so at the start of each Sync a context deadline is translated into the
// handler's own Timeout field, keeping a fieldbus call from blocking the
// driver loop indefinitely.
const defaultTimeout = 2 * time.Second

// Bridge is a Modbus/TCP master bound to one Config. It is not
// goroutine-safe; the CLI driver owns one Bridge and calls Sync from its
// single-threaded frame loop.
type Bridge struct {
	cfg Config

	handler *modbus.TCPClientHandler
	client  modbus.Client

	connected bool
	lastError string

	coils   []bool
	holding []uint16
}

// New builds a disconnected Bridge for cfg.
func New(cfg Config) *Bridge {
	return &Bridge{
		cfg:     cfg,
		coils:   make([]bool, cfg.NumOutputs),
		holding: make([]uint16, cfg.NumAnalogOutputs),
	}
}

// Config returns the bridge's current settings.
func (b *Bridge) Config() Config { return b.cfg }

// LastError returns the most recent transport error message, or "" if the
// last sync succeeded. Non-fatal by design: a sync failure never stops the
// scan loop, it only leaves stale I/O values in place until the next
// successful sync.
func (b *Bridge) LastError() string { return b.lastError }

// Connected reports whether the underlying TCP connection is currently
// open.
func (b *Bridge) Connected() bool { return b.connected }

// Connect opens the TCP connection. Calling Connect while already
// connected reconnects.
func (b *Bridge) Connect() error {
	b.Disconnect()

	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", b.cfg.IP, b.cfg.Port))
	handler.SlaveId = byte(b.cfg.SlaveID)
	handler.Timeout = defaultTimeout

	if err := handler.Connect(); err != nil {
		b.lastError = errors.Wrap(err, "connect").Error()
		return errors.Wrap(err, "modbus connect")
	}

	b.handler = handler
	b.client = modbus.NewClient(handler)
	b.connected = true
	b.lastError = ""
	return nil
}

// Disconnect closes the TCP connection, if any. Safe to call when not
// connected.
func (b *Bridge) Disconnect() {
	if b.handler != nil {
		b.handler.Close()
	}
	b.handler = nil
	b.client = nil
	b.connected = false
}

// Sync runs one full read/write pass against eng: read discrete inputs
// into INPUT_i, write changed OUTPUT_i to coils, read input registers
// into AINPUT_i, write changed AOUTPUT_i to holding registers. A
// transport failure sets LastError and returns it wrapped, but never
// disconnects; the caller is expected to retry on the next tick.
func (b *Bridge) Sync(ctx context.Context, eng *scan.Engine) error {
	if !b.connected {
		return errors.New("fieldbus: not connected")
	}
	b.handler.Timeout = defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			b.handler.Timeout = d
		}
	}

	if err := b.syncDiscreteInputs(eng); err != nil {
		return b.fail("discrete inputs", err)
	}
	if err := b.syncCoils(eng); err != nil {
		return b.fail("coils", err)
	}
	if err := b.syncInputRegisters(eng); err != nil {
		return b.fail("input registers", err)
	}
	if err := b.syncHoldingRegisters(eng); err != nil {
		return b.fail("holding registers", err)
	}

	b.lastError = ""
	return nil
}

func (b *Bridge) fail(phase string, err error) error {
	wrapped := &SyncError{Phase: phase, Err: err}
	b.lastError = wrapped.Error()
	return wrapped
}

func (b *Bridge) syncDiscreteInputs(eng *scan.Engine) error {
	n := b.cfg.NumInputs
	if n == 0 {
		return nil
	}
	raw, err := b.client.ReadDiscreteInputs(0, uint16(n))
	if err != nil {
		return errors.Wrap(err, "read discrete inputs")
	}
	for i := 0; i < n; i++ {
		eng.SetSignal(fmt.Sprintf("INPUT_%d", i), bitSet(raw, i))
	}
	return nil
}

func (b *Bridge) syncCoils(eng *scan.Engine) error {
	n := b.cfg.NumOutputs
	if n == 0 {
		return nil
	}
	changed := false
	for i := 0; i < n; i++ {
		v := eng.SignalValue(fmt.Sprintf("OUTPUT_%d", i))
		if b.coils[i] != v {
			b.coils[i] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	_, err := b.client.WriteMultipleCoils(0, uint16(n), packBits(b.coils))
	return errors.Wrap(err, "write coils")
}

func (b *Bridge) syncInputRegisters(eng *scan.Engine) error {
	n := b.cfg.NumAnalogInputs
	if n == 0 {
		return nil
	}
	raw, err := b.client.ReadInputRegisters(0, uint16(n))
	if err != nil {
		return errors.Wrap(err, "read input registers")
	}
	for i := 0; i < n; i++ {
		eng.SetAnalog(fmt.Sprintf("AINPUT_%d", i), int(register(raw, i)))
	}
	return nil
}

func (b *Bridge) syncHoldingRegisters(eng *scan.Engine) error {
	n := b.cfg.NumAnalogOutputs
	if n == 0 {
		return nil
	}
	changed := false
	for i := 0; i < n; i++ {
		v := uint16(eng.AnalogValue(fmt.Sprintf("AOUTPUT_%d", i)))
		if b.holding[i] != v {
			b.holding[i] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	_, err := b.client.WriteMultipleRegisters(0, uint16(n), packRegisters(b.holding))
	return errors.Wrap(err, "write holding registers")
}

// bitSet reads bit i (0-based) out of a Modbus bit-packed response: byte
// i/8, bit i%8.
func bitSet(raw []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(raw) {
		return false
	}
	return raw[byteIdx]&(1<<uint(i%8)) != 0
}

// packBits packs a bool slice into a Modbus coil-write payload.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// register reads register i (0-based) as a big-endian uint16 out of a
// Modbus register-read response.
func register(raw []byte, i int) uint16 {
	off := i * 2
	if off+1 >= len(raw) {
		return 0
	}
	return uint16(raw[off])<<8 | uint16(raw[off+1])
}

// packRegisters packs a uint16 slice into a Modbus register-write payload,
// low 8 bits significant per the wire format's default analog mapping;
// the full 16 bits are still transmitted for a compliant peer to use.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, v := range regs {
		out[i*2] = byte(v >> 8)
		out[i*2+1] = byte(v)
	}
	return out
}
