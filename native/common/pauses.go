package common

import (
	"strings"
	"sync"
)

// PauseSet is an in-memory pause registry satisfying PauseView. Operators
// toggle modules during incident response; a paused module rejects every
// mutating operation until resumed.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

func (p *PauseSet) Pause(module string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.paused[strings.ToLower(strings.TrimSpace(module))] = true
	p.mu.Unlock()
}

func (p *PauseSet) Resume(module string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.paused, strings.ToLower(strings.TrimSpace(module)))
	p.mu.Unlock()
}

func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[strings.ToLower(strings.TrimSpace(module))]
}
