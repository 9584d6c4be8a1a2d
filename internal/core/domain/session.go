package domain

// SessionState is the lifecycle position of a single channel connection.
type SessionState string

const (
	SessionStateConnecting SessionState = "connecting"
	SessionStateSubscribed SessionState = "subscribed"
	SessionStateStreaming  SessionState = "streaming"
	SessionStateClosed     SessionState = "closed"
)
