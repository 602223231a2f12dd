package relay

// DestKind selects how an emission is routed by the boundary adapter.
type DestKind int

const (
	// DestSelf routes the event back to the connection that caused it.
	DestSelf DestKind = iota
	// DestAllExceptSelf broadcasts the event to every connection except the
	// one that caused it.
	DestAllExceptSelf
	// DestOne routes the event to a single target connection.
	DestOne
)

// Emission is one outbound instruction produced by an engine handler: send the
// named event with the given payload to the selected destination. Handlers
// return emissions instead of performing sends so the state-mutation logic is
// testable without a transport.
type Emission struct {
	Dest    DestKind
	Target  string // recipient connection ID, set only for DestOne
	Event   string // protocol message type
	Payload interface{}
}

func emitSelf(event string, payload interface{}) Emission {
	return Emission{Dest: DestSelf, Event: event, Payload: payload}
}

func emitAllExceptSelf(event string, payload interface{}) Emission {
	return Emission{Dest: DestAllExceptSelf, Event: event, Payload: payload}
}

func emitOne(target, event string, payload interface{}) Emission {
	return Emission{Dest: DestOne, Target: target, Event: event, Payload: payload}
}
