package wire

import (
	"math"

	strata "github.com/stratakv/strata-go"
	"github.com/stratakv/strata-go/errors"
)

// Tree describes a value to be materialized in engine memory. It is
// the engine side of the node ABI: engine implementations and test
// harnesses build Trees, the binding only ever decodes them.
type Tree struct {
	Kind   Kind
	Str    string
	Format string // verbatim-string format tag
	Int    int64
	Float  float64
	Bool   bool
	Elems  []Tree
	Pairs  [][2]Tree
}

func Nil() Tree                { return Tree{Kind: KindNil} }
func Int(v int64) Tree         { return Tree{Kind: KindInteger, Int: v} }
func Double(v float64) Tree    { return Tree{Kind: KindDouble, Float: v} }
func Bool(v bool) Tree         { return Tree{Kind: KindBoolean, Bool: v} }
func Simple(s string) Tree     { return Tree{Kind: KindSimpleString, Str: s} }
func Bulk(s string) Tree       { return Tree{Kind: KindBulkString, Str: s} }
func Ok() Tree                 { return Tree{Kind: KindOK} }
func Array(elems ...Tree) Tree { return Tree{Kind: KindArray, Elems: elems} }
func Set(elems ...Tree) Tree   { return Tree{Kind: KindSet, Elems: elems} }

func VerbatimOf(format, text string) Tree {
	return Tree{Kind: KindVerbatimString, Format: format, Str: text}
}

func Map(pairs ...[2]Tree) Tree { return Tree{Kind: KindMap, Pairs: pairs} }

// KV pairs a key tree with a value tree for Map
func KV(key, value Tree) [2]Tree { return [2]Tree{key, value} }

// Allocations records the engine-memory regions backing one built
// value so the engine can release them all when the value is freed.
type Allocations struct {
	regions []region
}

type region struct {
	ptr   uint32
	size  uint32
	align uint32
}

func (a *Allocations) add(ptr, size, align uint32) {
	a.regions = append(a.regions, region{ptr: ptr, size: size, align: align})
}

// Free returns every recorded region to the allocator
func (a *Allocations) Free(alloc strata.Allocator) {
	for _, r := range a.regions {
		alloc.Free(r.ptr, r.size, r.align)
	}
	a.regions = nil
}

// Builder writes value trees into engine memory
type Builder struct {
	mem   strata.Memory
	alloc strata.Allocator
}

func NewBuilder(mem strata.Memory, alloc strata.Allocator) *Builder {
	return &Builder{mem: mem, alloc: alloc}
}

// Build materializes t and returns the address of its root node along
// with the allocations backing the whole tree. On error every
// allocation made so far has already been freed.
func (b *Builder) Build(t Tree) (uint32, *Allocations, error) {
	allocs := &Allocations{}
	addr, err := b.grab(allocs, NodeSize, NodeAlign)
	if err != nil {
		return 0, nil, err
	}
	if err := b.write(t, addr, allocs); err != nil {
		allocs.Free(b.alloc)
		return 0, nil, err
	}
	return addr, allocs, nil
}

func (b *Builder) write(t Tree, addr uint32, allocs *Allocations) error {
	n := Node{Kind: t.Kind}

	switch t.Kind {
	case KindNil, KindOK:

	case KindInteger:
		n.Scalar = uint64(t.Int)

	case KindDouble:
		n.Scalar = math.Float64bits(t.Float)

	case KindBoolean:
		if t.Bool {
			n.Scalar = 1
		}

	case KindSimpleString, KindBulkString:
		ptr, err := b.writePayload(allocs, []byte(t.Str))
		if err != nil {
			return err
		}
		n.Ptr = ptr
		n.Len = uint32(len(t.Str))

	case KindVerbatimString:
		payload := append([]byte(t.Format), t.Str...)
		ptr, err := b.writePayload(allocs, payload)
		if err != nil {
			return err
		}
		n.Ptr = ptr
		n.Len = uint32(len(payload))
		n.Aux = uint32(len(t.Format))

	case KindArray, KindSet, KindPush:
		count := uint32(len(t.Elems))
		n.Len = count
		if count > 0 {
			base, err := b.grab(allocs, count*NodeSize, NodeAlign)
			if err != nil {
				return err
			}
			n.Ptr = base
			for i, elem := range t.Elems {
				if err := b.write(elem, base+uint32(i)*NodeSize, allocs); err != nil {
					return err
				}
			}
		}

	case KindMap:
		count := uint32(len(t.Pairs))
		n.Len = count
		if count > 0 {
			base, err := b.grab(allocs, 2*count*NodeSize, NodeAlign)
			if err != nil {
				return err
			}
			n.Ptr = base
			for i, pair := range t.Pairs {
				if err := b.write(pair[0], base+uint32(2*i)*NodeSize, allocs); err != nil {
					return err
				}
				if err := b.write(pair[1], base+uint32(2*i+1)*NodeSize, allocs); err != nil {
					return err
				}
			}
		}

	default:
		// Unsupported kinds are written as bare nodes so decoder error
		// paths can be exercised.
	}

	return WriteNode(b.mem, addr, n)
}

func (b *Builder) writePayload(allocs *Allocations, payload []byte) (uint32, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	ptr, err := b.grab(allocs, uint32(len(payload)), 1)
	if err != nil {
		return 0, err
	}
	if err := b.mem.Write(ptr, payload); err != nil {
		return 0, err
	}
	return ptr, nil
}

func (b *Builder) grab(allocs *Allocations, size, align uint32) (uint32, error) {
	ptr, err := b.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size)
	}
	allocs.add(ptr, size, align)
	return ptr, nil
}

// WriteCString writes a NUL-terminated string into engine memory and
// returns its address and allocation size (length plus terminator).
func WriteCString(mem strata.Memory, alloc strata.Allocator, s string) (uint32, uint32, error) {
	size := uint32(len(s)) + 1
	ptr, err := alloc.Alloc(size, 1)
	if err != nil {
		return 0, 0, errors.AllocationFailed(errors.PhaseEncode, size)
	}
	payload := append([]byte(s), 0)
	if err := mem.Write(ptr, payload); err != nil {
		alloc.Free(ptr, size, 1)
		return 0, 0, err
	}
	return ptr, size, nil
}
