package transcoder

import (
	"sync"

	strata "github.com/stratakv/strata-go"
)

// span is one engine-memory region backing encoded arguments
type span struct {
	ptr   uint32
	size  uint32
	align uint32
}

// Buffers tracks the engine-memory regions behind one encoded argument
// vector: the inline block as a single span, or one span per
// heap-allocated argument. A dispatch releases the whole set exactly
// once, on every exit path.
type Buffers struct {
	spans []span
}

var bufferPool = sync.Pool{
	New: func() any {
		return &Buffers{spans: make([]span, 0, 8)}
	},
}

func newBuffers() *Buffers {
	return bufferPool.Get().(*Buffers)
}

// maxPooledSpans caps the backing capacity returned to the pool so one
// oversized call cannot pin memory.
const maxPooledSpans = 128

func (b *Buffers) add(ptr, size, align uint32) {
	b.spans = append(b.spans, span{ptr: ptr, size: size, align: align})
}

// Count returns the number of regions held
func (b *Buffers) Count() int {
	return len(b.spans)
}

// Free returns every region to the allocator and empties the set
func (b *Buffers) Free(alloc strata.Allocator) {
	for _, s := range b.spans {
		alloc.Free(s.ptr, s.size, s.align)
	}
	b.spans = b.spans[:0]
}

// FreeAndRelease frees every region and hands the set back to its
// pool. The set must not be used afterwards.
func (b *Buffers) FreeAndRelease(alloc strata.Allocator) {
	b.Free(alloc)
	if cap(b.spans) > maxPooledSpans {
		return
	}
	bufferPool.Put(b)
}
