package wire

// OKValue is the decoded form of the engine's OK status reply. It is a
// dedicated sentinel so callers can distinguish it from a simple string
// that happens to contain "OK".
type OKValue struct{}

func (OKValue) String() string { return "OK" }

// OK is the singleton OK reply value
var OK = OKValue{}

// Pair is one decoded map entry. Maps decode to []Pair, preserving the
// engine's delivery order.
type Pair struct {
	Key   any
	Value any
}

// Verbatim is a decoded verbatim string: a three-character format tag
// (such as "txt" or "mkd") and the text body.
type Verbatim struct {
	Format string
	Text   string
}
