package model

// WebSocket frame types pushed to job subscribers.
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is a generic frame; clients send ping, the server answers pong.
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage wraps a full job snapshot. The stream ends after the
// first terminal snapshot.
type WSSnapshotMessage struct {
	Type string `json:"type"`
	Job  *Job   `json:"job"`
}

// WSErrorMessage reports a subscription-level failure (e.g. unknown job).
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
