package game

// External collaborator interfaces. The core tells these what happened
// and never consults a return value; they subscribe to bus events through
// the facade's wiring rather than being called from inside mutators.

// Renderer displays phase, turn, and timeline state. Implemented by the
// map/interface layer on a client, and by the broadcast adapter on the
// server.
type Renderer interface {
	ShowPhase(phase Phase, subphase Subphase)
	HighlightActivePlayer(playerID string)
	RenderOrderTimeline(team string, units map[string][]Order)
}

// Notifier surfaces user-facing messages for rejections and
// state-critical moments.
type Notifier interface {
	ShowMessage(text, severity string)
}

// NetworkChannel is the send/receive abstraction over the session
// transport. Send is asynchronous: callers must not assume delivery has
// completed when it returns.
type NetworkChannel interface {
	Send(event string, payload []byte) error
	OnReceive(event string, handler func(payload []byte))
}
