package wire

import (
	"math"

	strata "github.com/stratakv/strata-go"
	"github.com/stratakv/strata-go/errors"
)

// maxDepth bounds recursion so a corrupt node graph with a cycle fails
// instead of hanging.
const maxDepth = 512

// maxCStringLen bounds the scan for a NUL terminator in engine-supplied
// error strings.
const maxCStringLen = 1 << 16

// Decoder converts engine value nodes into Go values.
//
// Decoded mapping:
//
//	nil              -> nil
//	integer          -> int64
//	double           -> float64
//	boolean          -> bool
//	simple string    -> string
//	bulk string      -> string
//	verbatim string  -> Verbatim
//	ok               -> OKValue
//	array, set       -> []any (set order is the engine's delivery order)
//	map              -> []Pair, preserving delivery order
//
// String payloads are read with their explicit byte length and may
// contain embedded zero bytes. BigNumber, Attribute and Push are not
// supported and fail with a not_implemented error.
//
// The decoder never frees engine memory; the caller releases the
// top-level value exactly once after the decode pass.
type Decoder struct {
	mem strata.Memory
}

func NewDecoder(mem strata.Memory) *Decoder {
	return &Decoder{mem: mem}
}

// Decode materializes the value tree rooted at addr
func (d *Decoder) Decode(addr uint32) (any, error) {
	return d.decode(addr, 0)
}

func (d *Decoder) decode(addr uint32, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errors.InvalidData(errors.PhaseDecode, "value nesting exceeds %d levels", maxDepth)
	}

	n, err := ReadNode(d.mem, addr)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case KindNil:
		return nil, nil

	case KindInteger:
		return int64(n.Scalar), nil

	case KindDouble:
		return math.Float64frombits(n.Scalar), nil

	case KindBoolean:
		return n.Scalar != 0, nil

	case KindSimpleString, KindBulkString:
		return d.readString(n.Ptr, n.Len)

	case KindVerbatimString:
		if n.Aux > n.Len {
			return nil, errors.InvalidData(errors.PhaseDecode,
				"verbatim format length %d exceeds payload length %d", n.Aux, n.Len)
		}
		payload, err := d.readBytes(n.Ptr, n.Len)
		if err != nil {
			return nil, err
		}
		// Format and text are distinct sub-ranges of the payload.
		return Verbatim{
			Format: string(payload[:n.Aux]),
			Text:   string(payload[n.Aux:]),
		}, nil

	case KindOK:
		return OK, nil

	case KindArray, KindSet:
		elems := make([]any, 0, n.Len)
		for i := uint32(0); i < n.Len; i++ {
			elem, err := d.decode(n.Ptr+i*NodeSize, depth+1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		return elems, nil

	case KindMap:
		pairs := make([]Pair, 0, n.Len)
		for i := uint32(0); i < n.Len; i++ {
			key, err := d.decode(n.Ptr+(2*i)*NodeSize, depth+1)
			if err != nil {
				return nil, err
			}
			value, err := d.decode(n.Ptr+(2*i+1)*NodeSize, depth+1)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: key, Value: value})
		}
		return pairs, nil

	case KindBigNumber, KindAttribute, KindPush:
		return nil, errors.NotImplemented(n.Kind.String())

	default:
		return nil, errors.InvalidData(errors.PhaseDecode, "unknown value kind %d", uint32(n.Kind))
	}
}

func (d *Decoder) readString(ptr, length uint32) (string, error) {
	b, err := d.readBytes(ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) readBytes(ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	b, err := d.mem.Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read value payload")
	}
	return b, nil
}

// ReadCString copies a NUL-terminated engine string out of engine
// memory. Engine error strings use this length-implicit encoding; the
// caller frees the string via the engine's free-string entry point
// immediately after the copy.
func ReadCString(mem strata.Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	var buf []byte
	for i := uint32(0); i < maxCStringLen; i++ {
		b, err := mem.ReadU8(ptr + i)
		if err != nil {
			return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read engine string")
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", errors.InvalidData(errors.PhaseDecode, "engine string missing terminator within %d bytes", maxCStringLen)
}
