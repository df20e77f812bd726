package transcoder_test

import (
	"strings"
	"testing"

	"github.com/stratakv/strata-go/enginetest"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/transcoder"
)

func readBack(t *testing.T, arena *enginetest.Arena, ptr, length uint32) (byte, string) {
	t.Helper()
	prov, err := arena.ReadU8(ptr - 1)
	if err != nil {
		t.Fatalf("read provenance byte: %v", err)
	}
	payload, err := arena.Read(ptr, length)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	term, err := arena.ReadU8(ptr + length)
	if err != nil {
		t.Fatalf("read terminator: %v", err)
	}
	if term != 0 {
		t.Fatalf("missing NUL terminator, got %d", term)
	}
	return prov, string(payload)
}

func TestEncodeArgs_InlinePath(t *testing.T) {
	arena := enginetest.NewArena()
	args := []string{"SET", "key", "value", "EX", "10"}

	vector, list, err := transcoder.EncodeArgs(arena, arena, args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	if len(vector) != len(args) {
		t.Fatalf("Expected %d args, got %d", len(args), len(vector))
	}
	if list.Count() != 1 {
		t.Fatalf("Inline path should make one block allocation, got %d", list.Count())
	}

	for i, arg := range args {
		prov, payload := readBack(t, arena, vector[i].Ptr, vector[i].Len)
		if prov != transcoder.ProvenanceInline {
			t.Fatalf("Arg %d: expected inline provenance, got %d", i, prov)
		}
		if payload != arg {
			t.Fatalf("Arg %d: expected %q, got %q", i, arg, payload)
		}
	}

	list.FreeAndRelease(arena)
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected all buffers freed, %d live", arena.LiveCount())
	}
}

func TestEncodeArgs_HeapPathManyArgs(t *testing.T) {
	arena := enginetest.NewArena()
	args := make([]string, 25)
	for i := range args {
		args[i] = "arg"
	}

	vector, list, err := transcoder.EncodeArgs(arena, arena, args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	if list.Count() != len(args) {
		t.Fatalf("Heap path should allocate per argument, got %d allocations", list.Count())
	}

	for i := range args {
		prov, payload := readBack(t, arena, vector[i].Ptr, vector[i].Len)
		if prov != transcoder.ProvenanceHeap {
			t.Fatalf("Arg %d: expected heap provenance, got %d", i, prov)
		}
		if payload != "arg" {
			t.Fatalf("Arg %d: expected 'arg', got %q", i, payload)
		}
	}

	list.FreeAndRelease(arena)
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected all buffers freed, %d live", arena.LiveCount())
	}
	if misuse := arena.Misuse(); len(misuse) != 0 {
		t.Fatalf("Allocator misuse: %v", misuse)
	}
}

func TestEncodeArgs_HeapPathLongArg(t *testing.T) {
	arena := enginetest.NewArena()
	long := strings.Repeat("x", transcoder.MaxInlinePayload+1)
	args := []string{"SET", "key", long}

	vector, list, err := transcoder.EncodeArgs(arena, arena, args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}

	// One oversized argument pushes the whole call onto the heap path.
	for i, arg := range args {
		prov, payload := readBack(t, arena, vector[i].Ptr, vector[i].Len)
		if prov != transcoder.ProvenanceHeap {
			t.Fatalf("Arg %d: expected heap provenance, got %d", i, prov)
		}
		if payload != arg {
			t.Fatalf("Arg %d: payload mismatch", i)
		}
	}

	list.FreeAndRelease(arena)
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected all buffers freed, %d live", arena.LiveCount())
	}
}

func TestEncodeArgs_BoundaryPayloadStaysInline(t *testing.T) {
	arena := enginetest.NewArena()
	exact := strings.Repeat("y", transcoder.MaxInlinePayload)

	vector, list, err := transcoder.EncodeArgs(arena, arena, []string{exact})
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	prov, payload := readBack(t, arena, vector[0].Ptr, vector[0].Len)
	if prov != transcoder.ProvenanceInline {
		t.Fatalf("Boundary-size payload should stay inline, got provenance %d", prov)
	}
	if payload != exact {
		t.Fatal("Boundary payload mismatch")
	}
	list.FreeAndRelease(arena)
}

func TestEncodeArgs_Empty(t *testing.T) {
	arena := enginetest.NewArena()

	vector, list, err := transcoder.EncodeArgs(arena, arena, nil)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	if len(vector) != 0 || list.Count() != 0 {
		t.Fatal("Empty argument list should encode to nothing")
	}
	list.FreeAndRelease(arena)
}

func TestEncodeArgs_PartialFailureReleasesEncoded(t *testing.T) {
	arena := enginetest.NewArena()
	arena.AllocFailAfter = 10

	args := make([]string, 25) // heap path, one allocation per arg
	for i := range args {
		args[i] = "payload"
	}

	_, _, err := transcoder.EncodeArgs(arena, arena, args)
	if !errors.IsKind(err, errors.KindAllocation) {
		t.Fatalf("Expected allocation error, got %v", err)
	}
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected partial buffers released, %d live", arena.LiveCount())
	}
	if misuse := arena.Misuse(); len(misuse) != 0 {
		t.Fatalf("Allocator misuse: %v", misuse)
	}
}
