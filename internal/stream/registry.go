package stream

import (
	"sync"
)

// Registry tracks open streams by port config and by mix port. Closed
// streams are pruned lazily on counting.
type Registry struct {
	mu       sync.Mutex
	byConfig map[int32]*Stream
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byConfig: make(map[int32]*Stream)}
}

// Add records an open stream under its port config id.
func (r *Registry) Add(s *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConfig[s.PortConfigID()] = s
}

// Remove forgets the stream bound to the given port config.
func (r *Registry) Remove(portConfigID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConfig, portConfigID)
}

// Get returns the open stream bound to the given port config.
func (r *Registry) Get(portConfigID int32) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConfig[portConfigID]
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// Has reports whether an open stream is bound to the given port config.
func (r *Registry) Has(portConfigID int32) bool {
	_, ok := r.Get(portConfigID)
	return ok
}

// CountForPort returns the number of open streams on the given mix port,
// pruning any that have been closed.
func (r *Registry) CountForPort(portID int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for cfgID, s := range r.byConfig {
		if s.IsClosed() {
			delete(r.byConfig, cfgID)
			continue
		}
		if s.PortID() == portID {
			count++
		}
	}
	return count
}

// All returns the open streams, pruning closed ones.
func (r *Registry) All() []*Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Stream, 0, len(r.byConfig))
	for cfgID, s := range r.byConfig {
		if s.IsClosed() {
			delete(r.byConfig, cfgID)
			continue
		}
		out = append(out, s)
	}
	return out
}
