package game

// Hand-rolled collaborator fakes shared by the tests in this package.

type fakeRenderer struct {
	phases    []string
	active    []string
	timelines []string
	closed    bool
}

func (r *fakeRenderer) ShowPhase(phase Phase, subphase Subphase) {
	r.phases = append(r.phases, string(phase)+"/"+string(subphase))
}

func (r *fakeRenderer) HighlightActivePlayer(playerID string) {
	r.active = append(r.active, playerID)
}

func (r *fakeRenderer) RenderOrderTimeline(team string, units map[string][]Order) {
	r.timelines = append(r.timelines, team)
}

func (r *fakeRenderer) Close() error {
	r.closed = true
	return nil
}

type fakeNotifier struct {
	messages   []string
	severities []string
}

func (n *fakeNotifier) ShowMessage(text, severity string) {
	n.messages = append(n.messages, text)
	n.severities = append(n.severities, severity)
}

type sentFrame struct {
	event   string
	payload []byte
}

// fakeChannel records sends and lets tests inject inbound frames.
type fakeChannel struct {
	sent     []sentFrame
	handlers map[string]func([]byte)
	sendErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]func([]byte))}
}

func (c *fakeChannel) Send(event string, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.sent = append(c.sent, sentFrame{event: event, payload: buf})
	return c.sendErr
}

func (c *fakeChannel) OnReceive(event string, handler func(payload []byte)) {
	c.handlers[event] = handler
}

func (c *fakeChannel) receive(event string, payload []byte) {
	if h, ok := c.handlers[event]; ok {
		h(payload)
	}
}

func testRegistry() (*Registry, *fakeRenderer, *fakeNotifier) {
	reg := NewRegistry()
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}
	reg.RegisterInstance(KindRenderer, renderer)
	reg.RegisterInstance(KindNotifier, notifier)
	return reg, renderer, notifier
}
