package domain

// MessageKind classifies an inbound subscription frame by its shape.
type MessageKind int

const (
	// KindUnrecognized is valid JSON matching no known shape.
	KindUnrecognized MessageKind = iota
	// KindAck is the response to the subscribe request carrying the subscription id.
	KindAck
	// KindDataEvent is a subscription notification with a log under params.result.
	KindDataEvent
	// KindRPCError is a JSON-RPC error response.
	KindRPCError
)

func (k MessageKind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindDataEvent:
		return "data_event"
	case KindRPCError:
		return "rpc_error"
	default:
		return "unrecognized"
	}
}
