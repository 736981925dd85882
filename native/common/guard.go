package common

import (
	"errors"
	"sync"
)

// ErrModulePaused is returned by Guard when the module is halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when p reports the module as paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is an in-memory PauseView toggled by emergency admins.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses returns a PauseView with nothing paused.
func NewPauses() *Pauses {
	return &Pauses{paused: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Set pauses or resumes a module.
func (p *Pauses) Set(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}
