package route

// SlotType selects which node of a slot's shard a command targets
type SlotType int

const (
	SlotTypePrimary SlotType = iota
	SlotTypeReplica
)

func (s SlotType) String() string {
	switch s {
	case SlotTypePrimary:
		return "primary"
	case SlotTypeReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// Route describes which cluster member(s) a command should target. The
// variant set is closed: SimpleNodeRoute, SlotIDRoute, SlotKeyRoute and
// ByAddressRoute are the only implementations. Routes are immutable and
// constructed per call.
type Route interface {
	isRoute()
}

// SimpleNodeRoute is a payload-free route
type SimpleNodeRoute int

const (
	// AllNodes routes to every node in the cluster
	AllNodes SimpleNodeRoute = iota
	// AllPrimaries routes to every primary node
	AllPrimaries
	// Random routes to one node chosen by the engine
	Random
)

func (SimpleNodeRoute) isRoute() {}

// SlotIDRoute targets the node covering a slot given by its ID
type SlotIDRoute struct {
	SlotType SlotType
	SlotID   int32
}

func (SlotIDRoute) isRoute() {}

// SlotKeyRoute targets the node covering the slot a key hashes to
type SlotKeyRoute struct {
	SlotType SlotType
	SlotKey  string
}

func (SlotKeyRoute) isRoute() {}

// ByAddressRoute targets one node by host and port
type ByAddressRoute struct {
	Host string
	Port int32
}

func (ByAddressRoute) isRoute() {}
