package websocket

import (
	"github.com/yegors/co-gcs/internal/events"
)

// MessageFor converts a bus event to the wire message, or nil when the
// event is not forwarded. Per-component forwards only reach clients when
// two components contend for the same message.
func MessageFor(ev events.Event) *Message {
	if cm, ok := ev.(events.ComponentMessage); ok && !cm.Conflict {
		return nil
	}
	return &Message{Type: string(ev.Kind()), Data: events.Payload(ev)}
}

// BridgeEvents broadcasts bus events until the returned function is called
func (s *Server) BridgeEvents(bus *events.Bus) func() {
	return bus.Subscribe(func(ev events.Event) {
		if msg := MessageFor(ev); msg != nil {
			s.Broadcast(msg)
		}
	})
}
