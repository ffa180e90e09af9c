package fieldbus

import "fmt"

// SyncError reports which phase of a Sync call failed: discrete inputs,
// coils, input registers, or holding registers.
type SyncError struct {
	Phase string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("fieldbus sync (%s): %v", e.Phase, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
