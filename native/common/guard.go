package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// PauseSet is a static PauseView used by node wiring and tests.
type PauseSet map[string]bool

// IsPaused implements the PauseView interface.
func (p PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[module]
}

// Guard rejects mutations against a paused module. A nil view means pausing
// is not wired and every call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
