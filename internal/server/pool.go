package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Brownie44l1/pico-http/internal/response"
)

// Handle identifies one connection: the low 16 bits index a slot, the
// high 16 bits carry the slot's generation at the time it was handed
// out. A handle kept after its connection was released never resolves
// to the slot's next occupant.
type Handle uint32

// NoHandle is never issued.
const NoHandle Handle = 0

func makeHandle(index int, gen uint16) Handle {
	return Handle(uint32(gen)<<16 | uint32(index))
}

func (h Handle) index() int {
	return int(uint32(h) & 0xffff)
}

func (h Handle) generation() uint16 {
	return uint16(uint32(h) >> 16)
}

func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.index(), h.generation())
}

// maxSlots is bounded by the index width of a Handle.
const maxSlots = 1 << 16

// slot is the connection state for one accepted connection. Buffers are
// allocated once with the pool and reused.
type slot struct {
	gen   uint16
	state State
	conn  Conn

	buf   *response.Buffer
	total int
	acked int

	accepted time.Time
	deadline time.Time

	ctx  context.Context
	span trace.Span

	method string
	path   string
	status response.StatusCode
}

func (sl *slot) reset() {
	sl.state = StateFree
	sl.conn = nil
	sl.buf.Reset()
	sl.total = 0
	sl.acked = 0
	sl.accepted = time.Time{}
	sl.deadline = time.Time{}
	sl.ctx = nil
	sl.span = nil
	sl.method = ""
	sl.path = ""
	sl.status = 0
}

// pool is a fixed arena of connection slots with a free list. Nothing is
// allocated after construction.
type pool struct {
	slots []slot
	free  []int
}

func newPool(n, bufSize int) *pool {
	p := &pool{
		slots: make([]slot, n),
		free:  make([]int, 0, n),
	}
	for i := range p.slots {
		p.slots[i].gen = 1
		p.slots[i].buf = response.NewBuffer(bufSize)
	}
	// Hand out low indexes first.
	for i := n - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return p
}

// acquire takes a free slot, returning its handle.
func (p *pool) acquire() (Handle, *slot, bool) {
	if len(p.free) == 0 {
		return NoHandle, nil, false
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	sl := &p.slots[i]
	return makeHandle(i, sl.gen), sl, true
}

// release returns the slot behind h to the free list and bumps its
// generation. The caller must have resolved h with lookup first.
func (p *pool) release(h Handle) {
	sl := &p.slots[h.index()]
	sl.reset()
	sl.gen++
	if sl.gen == 0 {
		sl.gen = 1
	}
	p.free = append(p.free, h.index())
}

// lookup resolves h to its live slot.
func (p *pool) lookup(h Handle) (*slot, error) {
	i := h.index()
	if h == NoHandle || i >= len(p.slots) {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	sl := &p.slots[i]
	if sl.gen != h.generation() || sl.state == StateFree {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return sl, nil
}

func (p *pool) inUse() int {
	return len(p.slots) - len(p.free)
}

func (p *pool) size() int {
	return len(p.slots)
}
