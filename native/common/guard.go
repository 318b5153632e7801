package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// ErrReentrancy signals that a mutating operation was invoked while another
// operation on the same engine instance was still in progress.
var ErrReentrancy = errors.New("reentrant call rejected")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is a per-engine mutual-exclusion flag. Every externally
// reachable mutating operation raises the flag on entry and lowers it on every
// exit path. A collaborator calling back into the engine mid-operation trips
// the flag and is rejected.
//
// The execution model is strictly sequential, so a plain bool is sufficient;
// the guard protects against reentrancy, not parallelism.
type ReentrancyGuard struct {
	entered bool
}

// Enter raises the flag and returns the paired release function. Callers defer
// the release so the flag is lowered regardless of how the operation
// terminates.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.entered {
		return nil, ErrReentrancy
	}
	g.entered = true
	return func() { g.entered = false }, nil
}
