package wire

// Kind is the discriminant of one engine value node
type Kind uint32

const (
	KindNil Kind = iota
	KindInteger
	KindDouble
	KindBoolean
	KindSimpleString
	KindBulkString
	KindVerbatimString
	KindOK
	KindArray
	KindSet
	KindMap
	KindBigNumber
	KindAttribute
	KindPush
)

var kindNames = [...]string{
	KindNil:            "nil",
	KindInteger:        "integer",
	KindDouble:         "double",
	KindBoolean:        "boolean",
	KindSimpleString:   "simple-string",
	KindBulkString:     "bulk-string",
	KindVerbatimString: "verbatim-string",
	KindOK:             "ok",
	KindArray:          "array",
	KindSet:            "set",
	KindMap:            "map",
	KindBigNumber:      "big-number",
	KindAttribute:      "attribute",
	KindPush:           "push",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}
