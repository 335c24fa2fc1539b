// Package killswitch provides the emergency-stop check consulted by the
// engine before it starts a cycle and before every order submission.
package killswitch

import (
	"os"
)

// Monitor reports whether the operator has requested an emergency stop.
// Implementations must be cheap enough to call on every cycle.
type Monitor interface {
	Tripped() bool
}

// Func adapts a plain function to the Monitor interface.
type Func func() bool

// Tripped calls f.
func (f Func) Tripped() bool { return f() }

// Compile-time interface checks.
var (
	_ Monitor = Func(nil)
	_ Monitor = (*FileMonitor)(nil)
)

// FileMonitor trips when a marker file exists on disk. Operators activate the
// switch with `touch <path>` and clear it by deleting the file; no process
// restart is required either way.
type FileMonitor struct {
	path string
}

// NewFileMonitor creates a FileMonitor watching path.
func NewFileMonitor(path string) *FileMonitor {
	return &FileMonitor{path: path}
}

// Tripped returns true if the marker file exists. Stat errors other than
// "not exist" count as tripped: when the switch state cannot be read the safe
// interpretation is that it is active.
func (m *FileMonitor) Tripped() bool {
	if m.path == "" {
		return false
	}
	_, err := os.Stat(m.path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}
