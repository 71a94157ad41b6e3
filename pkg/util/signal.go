package util

import "sync"

// SigHandler receives the sender of a signal and optional parameters.
type SigHandler func(sender any, params ...any)

// Signals is a small synchronous event bus. Handlers run on the emitting
// goroutine in registration order.
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SigHandler
}

var defaultSignals = NewSignals()

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SigHandler)}
}

// Sig returns the process-wide signal bus.
func Sig() *Signals { return defaultSignals }

func (s *Signals) Connect(name string, h SigHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], h)
}

// Disconnect removes every handler of name.
func (s *Signals) Disconnect(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
}

func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	hs := append([]SigHandler(nil), s.handlers[name]...)
	s.mu.RUnlock()
	for _, h := range hs {
		h(sender, params...)
	}
}
