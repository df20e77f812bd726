package route

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/stratakv/strata-go/errors"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The same logical route always
// serializes to identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Decoding exists for the engine side
// of the boundary and for tests.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("route: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("route: CBOR decoder initialization failed: " + err.Error())
	}
}

const (
	kindSimple    = "simple"
	kindSlotID    = "slot-id"
	kindSlotKey   = "slot-key"
	kindByAddress = "by-address"
)

// envelope is the serialized route message
type envelope struct {
	Kind   string `cbor:"kind"`
	Simple int    `cbor:"simple,omitempty"`
	Slot   int    `cbor:"slot,omitempty"`
	ID     int32  `cbor:"id,omitempty"`
	Key    string `cbor:"key,omitempty"`
	Host   string `cbor:"host,omitempty"`
	Port   int32  `cbor:"port,omitempty"`
}

func slotTypeValue(s SlotType) (int, error) {
	switch s {
	case SlotTypePrimary, SlotTypeReplica:
		return int(s), nil
	default:
		return 0, errors.Request(errors.PhaseRoute, "invalid slot type %d", int(s))
	}
}

// Translate serializes a route descriptor into the route message
// carried alongside a command call. Malformed descriptors fail with a
// request error before any engine call is attempted. Serialization is
// deterministic: equal descriptors yield byte-identical output.
func Translate(r Route) ([]byte, error) {
	var env envelope

	switch r := r.(type) {
	case SimpleNodeRoute:
		switch r {
		case AllNodes, AllPrimaries, Random:
		default:
			return nil, errors.Request(errors.PhaseRoute, "invalid simple node route %d", int(r))
		}
		env = envelope{Kind: kindSimple, Simple: int(r)}

	case SlotIDRoute:
		slot, err := slotTypeValue(r.SlotType)
		if err != nil {
			return nil, err
		}
		env = envelope{Kind: kindSlotID, Slot: slot, ID: r.SlotID}

	case SlotKeyRoute:
		slot, err := slotTypeValue(r.SlotType)
		if err != nil {
			return nil, err
		}
		if r.SlotKey == "" {
			return nil, errors.Request(errors.PhaseRoute, "empty slot key")
		}
		env = envelope{Kind: kindSlotKey, Slot: slot, Key: r.SlotKey}

	case ByAddressRoute:
		if r.Host == "" {
			return nil, errors.Request(errors.PhaseRoute, "empty host in by-address route")
		}
		if r.Port <= 0 || r.Port > 65535 {
			return nil, errors.Request(errors.PhaseRoute, "invalid port %d in by-address route", r.Port)
		}
		env = envelope{Kind: kindByAddress, Host: r.Host, Port: r.Port}

	default:
		return nil, errors.Request(errors.PhaseRoute, "unknown route type %T", r)
	}

	out, err := encMode.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRoute, errors.KindRequest, err, "serialize route")
	}
	return out, nil
}

// Parse decodes a serialized route message back into its descriptor.
// This is the engine side of the boundary; the binding itself only
// translates outward.
func Parse(data []byte) (Route, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(errors.PhaseRoute, errors.KindInvalidData, err, "parse route message")
	}

	switch env.Kind {
	case kindSimple:
		r := SimpleNodeRoute(env.Simple)
		switch r {
		case AllNodes, AllPrimaries, Random:
			return r, nil
		}
		return nil, errors.InvalidData(errors.PhaseRoute, "invalid simple node route %d", env.Simple)
	case kindSlotID:
		return SlotIDRoute{SlotType: SlotType(env.Slot), SlotID: env.ID}, nil
	case kindSlotKey:
		return SlotKeyRoute{SlotType: SlotType(env.Slot), SlotKey: env.Key}, nil
	case kindByAddress:
		return ByAddressRoute{Host: env.Host, Port: env.Port}, nil
	default:
		return nil, errors.InvalidData(errors.PhaseRoute, "unknown route kind %q", env.Kind)
	}
}
