package enginetest

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Arena is engine-owned memory for tests: a growable byte region with
// a bump allocator, allocation accounting, and misuse detection
// (double frees, size-mismatched frees, frees of unknown pointers).
//
// Offset 0 is reserved so that 0 keeps its null meaning.
type Arena struct {
	mu     sync.Mutex
	data   []byte
	next   uint32
	live   map[uint32]uint32 // ptr -> size
	misuse []string

	// AllocFailAfter, when non-negative, makes Alloc fail once the
	// countdown reaches zero. Used to exercise partial-failure paths.
	AllocFailAfter int
}

func NewArena() *Arena {
	return &Arena{
		data:           make([]byte, 64),
		next:           8,
		live:           make(map[uint32]uint32),
		AllocFailAfter: -1,
	}
}

func (a *Arena) ensure(end uint32) {
	if end <= uint32(len(a.data)) {
		return
	}
	grown := make([]byte, end*2)
	copy(grown, a.data)
	a.data = grown
}

// Alloc implements strata.Allocator
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.AllocFailAfter == 0 {
		return 0, fmt.Errorf("arena: injected allocation failure")
	}
	if a.AllocFailAfter > 0 {
		a.AllocFailAfter--
	}

	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	ptr := (a.next + align - 1) &^ (align - 1)
	a.ensure(ptr + size)
	a.next = ptr + size
	a.live[ptr] = size
	return ptr, nil
}

// Free implements strata.Allocator
func (a *Arena) Free(ptr, size, align uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	got, ok := a.live[ptr]
	if !ok {
		a.misuse = append(a.misuse, fmt.Sprintf("free of unknown or already-freed pointer %d", ptr))
		return
	}
	if got != size {
		a.misuse = append(a.misuse, fmt.Sprintf("free of pointer %d with size %d, allocated %d", ptr, size, got))
	}
	delete(a.live, ptr)
}

// LiveCount returns the number of outstanding allocations
func (a *Arena) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Misuse returns every allocator misuse recorded so far
func (a *Arena) Misuse() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.misuse...)
}

func (a *Arena) bounds(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(a.data)) {
		return fmt.Errorf("arena: range [%d, %d) outside memory of %d bytes", offset, end, len(a.data))
	}
	return nil
}

// Read implements strata.Memory. The returned slice is a copy.
func (a *Arena) Read(offset, length uint32) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, a.data[offset:offset+length])
	return out, nil
}

// Write implements strata.Memory
func (a *Arena) Write(offset uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.data[offset:], data)
	return nil
}

func (a *Arena) ReadU8(offset uint32) (uint8, error) {
	b, err := a.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (a *Arena) ReadU32(offset uint32) (uint32, error) {
	b, err := a.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a *Arena) ReadU64(offset uint32) (uint64, error) {
	b, err := a.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (a *Arena) WriteU8(offset uint32, value uint8) error {
	return a.Write(offset, []byte{value})
}

func (a *Arena) WriteU32(offset uint32, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return a.Write(offset, b[:])
}

func (a *Arena) WriteU64(offset uint32, value uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	return a.Write(offset, b[:])
}
