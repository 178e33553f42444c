package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-separated and namespaced by the publishing component:
//
//	chatlist.updated       - the sorted chat index changed
//	chatlist.evicted       - a chat left the local user's view
//	message.upserted       - a message landed in a timeline or the local cache
//	message.send_ack       - an outgoing message was confirmed by the store
//	message.send_failed    - an outgoing message could not be written
//	membership.changed     - a chat's participant set changed
//	timeline.evicted       - an open chat view was forcibly closed
//	session.status_changed - the client runtime state machine moved
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
