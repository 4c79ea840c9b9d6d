package reader

// State is a step of the consume loop.
type State int

const (
	// Disconnected has no live connection.
	Disconnected State = iota
	// Connecting is dialing, opening the channel and declaring topology.
	Connecting
	// Subscribed has a consumer registered and nothing waited for yet.
	Subscribed
	// Waiting is blocked on the broker for a delivery.
	Waiting
	// Delivered returned a record from the last call.
	Delivered
	// TimedOut returned a TimeoutError from the last call.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Subscribed:
		return "Subscribed"
	case Waiting:
		return "Waiting"
	case Delivered:
		return "Delivered"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}
