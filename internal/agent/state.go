package agent

// State is the lifecycle phase of an Agent.
type State int32

const (
	StateStarting State = iota
	StateMonitoring
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateMonitoring:
		return "monitoring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome classifies one monitoring cycle.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeDeliveryFailed
	OutcomeCollectionFailed
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDeliveryFailed:
		return "delivery_failed"
	case OutcomeCollectionFailed:
		return "collection_failed"
	case OutcomeUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}
