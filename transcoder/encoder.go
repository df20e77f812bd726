package transcoder

import (
	strata "github.com/stratakv/strata-go"
	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/errors"
)

// Argument buffer ABI: one provenance byte immediately before the
// payload, a NUL terminator immediately after it. The Arg pointer
// handed to the engine addresses the payload, not the provenance byte.
//
// The provenance byte decides whether a buffer needs an individual
// heap release. Its layout is shared with the engine and must not
// change independently.
const (
	ProvenanceInline byte = 0 // slot in the per-call inline block, freed as one region
	ProvenanceHeap   byte = 1 // individually heap-allocated, freed per buffer

	// MaxInlineArgs is the largest argument count encoded through the
	// inline block.
	MaxInlineArgs = 20

	// InlineSlotSize is the byte size of one inline slot, including
	// the provenance byte and the terminator.
	InlineSlotSize = 100

	// MaxInlinePayload is the largest payload an inline slot holds.
	MaxInlinePayload = InlineSlotSize - 2
)

// EncodeArgs writes the command arguments into engine memory and
// returns the pointer/length vector for the command call plus the
// buffer set that releases every region.
//
// Small calls (at most MaxInlineArgs arguments, each fitting an inline
// slot) share a single block allocation; anything larger gets one heap
// allocation per argument. Either way each buffer carries its
// provenance byte, and on failure every buffer encoded so far is
// released before the error returns.
func EncodeArgs(mem strata.Memory, alloc strata.Allocator, args []string) ([]engine.Arg, *Buffers, error) {
	buffers := newBuffers()
	if len(args) == 0 {
		return nil, buffers, nil
	}

	encode := encodeHeap
	if inlineEligible(args) {
		encode = encodeInline
	}
	vector, err := encode(mem, alloc, args, buffers)
	if err != nil {
		buffers.FreeAndRelease(alloc)
		return nil, nil, err
	}
	return vector, buffers, nil
}

func inlineEligible(args []string) bool {
	if len(args) > MaxInlineArgs {
		return false
	}
	for _, a := range args {
		if len(a) > MaxInlinePayload {
			return false
		}
	}
	return true
}

func encodeInline(mem strata.Memory, alloc strata.Allocator, args []string, buffers *Buffers) ([]engine.Arg, error) {
	blockSize := uint32(len(args)) * InlineSlotSize
	block, err := alloc.Alloc(blockSize, 1)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseEncode, blockSize)
	}
	buffers.add(block, blockSize, 1)

	vector := make([]engine.Arg, len(args))
	buf := make([]byte, InlineSlotSize)
	for i, arg := range args {
		slot := block + uint32(i)*InlineSlotSize

		buf[0] = ProvenanceInline
		copy(buf[1:], arg)
		buf[1+len(arg)] = 0
		if err := mem.Write(slot, buf[:len(arg)+2]); err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write inline argument")
		}

		vector[i] = engine.Arg{Ptr: slot + 1, Len: uint32(len(arg))}
	}
	return vector, nil
}

func encodeHeap(mem strata.Memory, alloc strata.Allocator, args []string, buffers *Buffers) ([]engine.Arg, error) {
	vector := make([]engine.Arg, len(args))
	for i, arg := range args {
		size := uint32(len(arg)) + 2
		ptr, err := alloc.Alloc(size, 1)
		if err != nil {
			return nil, errors.AllocationFailed(errors.PhaseEncode, size)
		}
		buffers.add(ptr, size, 1)

		buf := make([]byte, size)
		buf[0] = ProvenanceHeap
		copy(buf[1:], arg)
		if err := mem.Write(ptr, buf); err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write argument")
		}

		vector[i] = engine.Arg{Ptr: ptr + 1, Len: uint32(len(arg))}
	}
	return vector, nil
}
