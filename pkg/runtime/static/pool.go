package static

import "github.com/gomlx/exceptions"

// RuntimePool is a bounded pool of reusable Runtimes over one Module, for
// serving the same plan from many goroutines without per-call arena
// reallocation. Get never blocks: an empty pool just creates a new Runtime.
// Runtimes returned to a full pool are dropped.
type RuntimePool struct {
	module *Module
	free   chan *Runtime
}

// NewRuntimePool creates a pool holding up to capacity idle Runtimes.
func NewRuntimePool(m *Module, capacity int) *RuntimePool {
	if capacity <= 0 {
		exceptions.Panicf("NewRuntimePool: capacity must be positive, got %d", capacity)
	}
	return &RuntimePool{
		module: m,
		free:   make(chan *Runtime, capacity),
	}
}

// Get returns an idle Runtime, or a freshly created one when the pool is empty.
// It never blocks.
func (p *RuntimePool) Get() *Runtime {
	select {
	case rt := <-p.free:
		return rt
	default:
		return p.module.NewRuntime()
	}
}

// Put returns a Runtime for reuse. Runtimes from other Modules are rejected; if
// the pool is already full the Runtime (and its arena) is dropped.
func (p *RuntimePool) Put(rt *Runtime) {
	if rt == nil {
		return
	}
	if rt.module != p.module {
		exceptions.Panicf("RuntimePool.Put: Runtime belongs to a different Module")
	}
	select {
	case p.free <- rt:
	default:
	}
}
