package engine

// Opcode selects the command a dispatch executes. The engine owns the
// full command table; the binding defines the opcodes its typed
// wrappers use plus Custom, whose first argument names the command.
type Opcode uint32

const (
	OpCustom Opcode = iota
	OpPing
	OpGet
	OpSet
	OpDel
	OpExists
	OpFlushAll
)

var opcodeNames = [...]string{
	OpCustom:   "CUSTOM",
	OpPing:     "PING",
	OpGet:      "GET",
	OpSet:      "SET",
	OpDel:      "DEL",
	OpExists:   "EXISTS",
	OpFlushAll: "FLUSHALL",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "UNKNOWN"
}
