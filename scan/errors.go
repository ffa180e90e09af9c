package scan

import "github.com/pkg/errors"

// ErrInvalidTopology is the sentinel wrapped by Validate when a program has
// no nodes or its evaluation order does not cover every node index.
var ErrInvalidTopology = errors.New("scan: invalid topology")

// Validate reports why IsValid is false, or nil if the engine is runnable.
// Update silently no-ops on an invalid engine; a caller that wants to
// surface the reason to an operator should call Validate once at load time.
func (e *Engine) Validate() error {
	if len(e.prog.Nodes) == 0 {
		return errors.Wrap(ErrInvalidTopology, "program has no nodes")
	}
	if !e.order.Covers(len(e.prog.Nodes)) {
		return errors.Wrap(ErrInvalidTopology, "evaluation order does not cover every node")
	}
	return nil
}
