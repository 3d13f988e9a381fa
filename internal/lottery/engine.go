// Package lottery implements the stall lottery: queue-number allocation, the per-category
// stall number pools and the contiguous-block draw, gated by an idle/queue/draw session.
//
// The package returns values only. Deciding what to broadcast is left to callers.
package lottery

import "stall-lottery/internal/repository"

// Engine bundles the components sharing one Session.
type Engine struct {
	Session    *Session
	Controller *Controller
	Allocator  *Allocator
	Draws      *DrawEngine
}

// NewEngine wires a session with its controller, allocator and draw engine.
// A nil intn draws with math/rand/v2.
func NewEngine(registry repository.Registry, intn IntN) *Engine {
	session := NewSession()
	return &Engine{
		Session:    session,
		Controller: NewController(registry, session),
		Allocator:  NewAllocator(registry, session),
		Draws:      NewDrawEngine(registry, session, intn),
	}
}
