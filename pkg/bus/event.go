package bus

// Kind identifies the type of an Event.
type Kind int

// Event kinds.
const (
	KindText Kind = iota
	KindPing
	KindPong
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Event is a server-to-client frame request published on the Bus.
// Payload is only meaningful for KindText.
type Event struct {
	Kind    Kind
	Payload string
}

// Text returns a text Event carrying payload.
func Text(payload string) Event {
	return Event{Kind: KindText, Payload: payload}
}

// Ping returns a ping Event.
func Ping() Event {
	return Event{Kind: KindPing}
}

// Pong returns a pong Event.
func Pong() Event {
	return Event{Kind: KindPong}
}
