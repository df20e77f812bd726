package wire

import (
	"encoding/binary"

	strata "github.com/stratakv/strata-go"
	"github.com/stratakv/strata-go/errors"
)

// Node byte layout in engine memory. Array, Set and Map children are a
// contiguous run of nodes at Ptr; Map flattens pairs into 2*Len
// alternating key/value nodes.
const (
	NodeSize  = 24
	NodeAlign = 8

	offKind   = 0
	offPtr    = 4
	offLen    = 8
	offAux    = 12
	offScalar = 16
)

// Node is one engine value node copied out of engine memory
type Node struct {
	Kind   Kind
	Ptr    uint32 // payload bytes, or first child node
	Len    uint32 // payload byte length, element count, or map pair count
	Aux    uint32 // verbatim-string: format tag byte length
	Scalar uint64 // integer value, float bits, or boolean
}

// ReadNode copies the node at addr out of engine memory
func ReadNode(mem strata.Memory, addr uint32) (Node, error) {
	raw, err := mem.Read(addr, NodeSize)
	if err != nil {
		return Node{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read value node")
	}
	return Node{
		Kind:   Kind(binary.LittleEndian.Uint32(raw[offKind:])),
		Ptr:    binary.LittleEndian.Uint32(raw[offPtr:]),
		Len:    binary.LittleEndian.Uint32(raw[offLen:]),
		Aux:    binary.LittleEndian.Uint32(raw[offAux:]),
		Scalar: binary.LittleEndian.Uint64(raw[offScalar:]),
	}, nil
}

// WriteNode writes a node at addr in engine memory
func WriteNode(mem strata.Memory, addr uint32, n Node) error {
	var raw [NodeSize]byte
	binary.LittleEndian.PutUint32(raw[offKind:], uint32(n.Kind))
	binary.LittleEndian.PutUint32(raw[offPtr:], n.Ptr)
	binary.LittleEndian.PutUint32(raw[offLen:], n.Len)
	binary.LittleEndian.PutUint32(raw[offAux:], n.Aux)
	binary.LittleEndian.PutUint64(raw[offScalar:], n.Scalar)
	return mem.Write(addr, raw[:])
}
