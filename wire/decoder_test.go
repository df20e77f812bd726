package wire_test

import (
	"reflect"
	"testing"

	"github.com/stratakv/strata-go/enginetest"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/wire"
)

func buildAndDecode(t *testing.T, tree wire.Tree) any {
	t.Helper()
	arena := enginetest.NewArena()
	builder := wire.NewBuilder(arena, arena)

	addr, allocs, err := builder.Build(tree)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	value, err := wire.NewDecoder(arena).Decode(addr)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	allocs.Free(arena)
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected all allocations freed, %d live", arena.LiveCount())
	}
	if misuse := arena.Misuse(); len(misuse) != 0 {
		t.Fatalf("Allocator misuse: %v", misuse)
	}
	return value
}

func TestDecode_Scalars(t *testing.T) {
	cases := []struct {
		name string
		tree wire.Tree
		want any
	}{
		{"nil", wire.Nil(), nil},
		{"integer", wire.Int(-42), int64(-42)},
		{"double", wire.Double(3.5), 3.5},
		{"bool true", wire.Bool(true), true},
		{"bool false", wire.Bool(false), false},
		{"simple string", wire.Simple("PONG"), "PONG"},
		{"bulk string", wire.Bulk("hello"), "hello"},
		{"empty bulk string", wire.Bulk(""), ""},
		{"bulk string with embedded zero", wire.Bulk("a\x00b"), "a\x00b"},
		{"ok sentinel", wire.Ok(), wire.OK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := buildAndDecode(t, tc.tree)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("Decoded %#v, want nil", got)
				}
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Decoded %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecode_StructurePreserving(t *testing.T) {
	tree := wire.Array(
		wire.Map(wire.KV(wire.Bulk("a"), wire.Int(1))),
		wire.Nil(),
		wire.Bulk("x"),
	)

	got := buildAndDecode(t, tree)

	want := []any{
		[]wire.Pair{{Key: "a", Value: int64(1)}},
		nil,
		"x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decoded %#v, want %#v", got, want)
	}
}

func TestDecode_SetAsSequence(t *testing.T) {
	got := buildAndDecode(t, wire.Set(wire.Bulk("a"), wire.Bulk("b")))

	want := []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decoded %#v, want %#v", got, want)
	}
}

func TestDecode_MapPreservesOrder(t *testing.T) {
	tree := wire.Map(
		wire.KV(wire.Bulk("z"), wire.Int(1)),
		wire.KV(wire.Bulk("a"), wire.Int(2)),
	)

	got := buildAndDecode(t, tree)

	want := []wire.Pair{
		{Key: "z", Value: int64(1)},
		{Key: "a", Value: int64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decoded %#v, want %#v", got, want)
	}
}

func TestDecode_VerbatimSubranges(t *testing.T) {
	got := buildAndDecode(t, wire.VerbatimOf("txt", "Some string"))

	v, ok := got.(wire.Verbatim)
	if !ok {
		t.Fatalf("Expected wire.Verbatim, got %T", got)
	}
	if v.Format != "txt" {
		t.Fatalf("Expected format 'txt', got %q", v.Format)
	}
	if v.Text != "Some string" {
		t.Fatalf("Expected text 'Some string', got %q", v.Text)
	}
}

func TestDecode_UnsupportedKinds(t *testing.T) {
	for _, kind := range []wire.Kind{wire.KindBigNumber, wire.KindAttribute, wire.KindPush} {
		t.Run(kind.String(), func(t *testing.T) {
			arena := enginetest.NewArena()
			builder := wire.NewBuilder(arena, arena)

			addr, allocs, err := builder.Build(wire.Tree{Kind: kind})
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			defer allocs.Free(arena)

			_, err = wire.NewDecoder(arena).Decode(addr)
			if !errors.IsKind(err, errors.KindNotImplemented) {
				t.Fatalf("Expected not_implemented, got %v", err)
			}
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	arena := enginetest.NewArena()
	addr, err := arena.Alloc(wire.NodeSize, wire.NodeAlign)
	if err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteNode(arena, addr, wire.Node{Kind: wire.Kind(99)}); err != nil {
		t.Fatal(err)
	}

	_, err = wire.NewDecoder(arena).Decode(addr)
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("Expected invalid_data, got %v", err)
	}
}

func TestDecode_VerbatimFormatLongerThanPayload(t *testing.T) {
	arena := enginetest.NewArena()
	addr, err := arena.Alloc(wire.NodeSize, wire.NodeAlign)
	if err != nil {
		t.Fatal(err)
	}
	node := wire.Node{Kind: wire.KindVerbatimString, Len: 2, Aux: 5}
	if err := wire.WriteNode(arena, addr, node); err != nil {
		t.Fatal(err)
	}

	_, err = wire.NewDecoder(arena).Decode(addr)
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("Expected invalid_data, got %v", err)
	}
}

func TestDecode_OutOfBoundsNode(t *testing.T) {
	arena := enginetest.NewArena()

	_, err := wire.NewDecoder(arena).Decode(1 << 20)
	if !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Fatalf("Expected out_of_bounds, got %v", err)
	}
}

func TestDecode_OKIsNotAString(t *testing.T) {
	got := buildAndDecode(t, wire.Ok())
	if _, isString := got.(string); isString {
		t.Fatal("OK must decode to the sentinel, not a plain string")
	}
}

func TestReadCString(t *testing.T) {
	arena := enginetest.NewArena()
	ptr, _, err := wire.WriteCString(arena, arena, "connection refused")
	if err != nil {
		t.Fatal(err)
	}

	got, err := wire.ReadCString(arena, ptr)
	if err != nil {
		t.Fatal(err)
	}
	if got != "connection refused" {
		t.Fatalf("Expected 'connection refused', got %q", got)
	}

	empty, err := wire.ReadCString(arena, 0)
	if err != nil || empty != "" {
		t.Fatalf("Expected empty string for null pointer, got %q, %v", empty, err)
	}
}

func TestBuild_PartialFailureFreesEverything(t *testing.T) {
	arena := enginetest.NewArena()
	arena.AllocFailAfter = 3

	builder := wire.NewBuilder(arena, arena)
	_, _, err := builder.Build(wire.Array(wire.Bulk("one"), wire.Bulk("two"), wire.Bulk("three")))
	if err == nil {
		t.Fatal("Expected injected allocation failure")
	}
	if arena.LiveCount() != 0 {
		t.Fatalf("Expected all partial allocations freed, %d live", arena.LiveCount())
	}
	if misuse := arena.Misuse(); len(misuse) != 0 {
		t.Fatalf("Allocator misuse: %v", misuse)
	}
}
