// Package stream defines the event vocabulary shared by every remote
// subscription: ordered Added/Changed/Removed events over a keyed
// collection, a terminal Cancelled event when the backend revokes the
// stream, and a Handle type that owns the release side of a subscription.
package stream

// Type classifies one observed mutation on a keyed collection.
type Type uint8

const (
	// Added means the key appeared in the collection.
	Added Type = iota + 1
	// Changed means the value under an existing key was rewritten.
	Changed
	// Removed means the key left the collection.
	Removed
	// Cancelled is terminal: the backend stopped the stream (permission
	// revoked, connectivity lost). It means "stop assuming freshness",
	// never "data deleted". No events follow it.
	Cancelled
)

func (t Type) String() string {
	switch t {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is a single delivery on a subscription. Value is the zero value for
// Removed and Cancelled events. Reason is set only for Cancelled.
type Event[T any] struct {
	Type   Type
	Key    string
	Value  T
	Reason string
}
