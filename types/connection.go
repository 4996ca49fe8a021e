package types

type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "disconnected"
	Connecting   ConnectionStatus = "connecting"
	Connected    ConnectionStatus = "connected"
)

type ConnectionState struct {
	Status    ConnectionStatus `json:"status"`
	LastError string           `json:"lastError,omitempty"`
}
