package domain

// ConnStatus is the streaming connection lifecycle state.
type ConnStatus string

const (
	StatusDisconnected   ConnStatus = "disconnected"
	StatusConnecting     ConnStatus = "connecting"
	StatusAuthenticating ConnStatus = "authenticating"
	StatusSubscribed     ConnStatus = "subscribed"
)

// ConnectionState is a point-in-time snapshot of the stream client's
// connection. Snapshots are values; the live state is owned by the stream
// client and guarded by its own lock.
type ConnectionState struct {
	Status           ConnStatus
	ReconnectAttempt int
	LastMessageAtMs  int64
}

// Live reports whether the connection is authenticated and receiving data.
func (s ConnectionState) Live() bool {
	return s.Status == StatusSubscribed
}
