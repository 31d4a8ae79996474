package midi

import (
	"chance-machine/internal/check"
)

// Router copies messages to every open output. It never blocks: each output
// has its own send goroutine and the router only enqueues.
type Router struct {
	reg *Registry
}

// NewRouter creates a router over the registry's open outputs
func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// Send enqueues msg on every open output and returns how many accepted it.
// With no open outputs it does nothing.
func (r *Router) Send(msg []byte) int {
	t := r.reg.table.Load()
	n := 0
	for _, s := range t.open {
		check.Assert(s != nil, "Router.Send: nil sender in route table")
		if s.enqueue(msg) {
			n++
		}
	}
	return n
}

// SendBlock routes every event of a block in offset order. It returns the
// number of outputs the block went to.
func (r *Router) SendBlock(buf Buffer) int {
	if len(buf) == 0 {
		return 0
	}
	t := r.reg.table.Load()
	for _, s := range t.open {
		check.Assert(s != nil, "Router.SendBlock: nil sender in route table")
		for _, ev := range buf {
			s.enqueue(ev.Message)
		}
	}
	return len(t.open)
}
