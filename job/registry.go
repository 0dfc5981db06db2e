package job

import (
	"sort"
	"sync"
)

// Registry maps queue names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds h to queue, replacing any previous handler.
func (r *Registry) Register(queue string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[queue] = h
}

// RegisterDefinition registers a typed definition as a TaskFunc.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Queue, Task(def.Handler))
}

// Get returns the handler for queue.
func (r *Registry) Get(queue string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[queue]
	return h, ok
}

// Queues returns the registered queue names in sorted order.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
