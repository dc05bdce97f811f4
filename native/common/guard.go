package common

import (
	"errors"
	"sync"
)

// ErrModulePaused is returned when an operation targets a paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the administrative pause switches consulted by the native
// engines before applying a state transition.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concurrency-safe map-backed PauseView driven by configuration or
// administrative action.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses builds a PauseView with the supplied modules paused.
func NewPauses(paused ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool, len(paused))}
	for _, module := range paused {
		p.paused[module] = true
	}
	return p
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// SetPaused flips the pause switch for a module.
func (p *Pauses) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = paused
}
