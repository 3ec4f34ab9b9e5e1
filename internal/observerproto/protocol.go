package observerproto

import "encoding/json"

// Version is the observer protocol version (separate from the renderer WS protocol).
const Version = "0.1"

const TypeSubscribe = "SUBSCRIBE"

// Client -> Server. First message on the observer WS connection; re-sending
// it switches the watched identity.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Identity        string `json:"identity"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	Live            []LiveRoom `json:"live"`
}

type LiveRoom struct {
	Identity  string `json:"identity"`
	Observers int    `json:"observers"`
	// Time of the last STATE published for this identity.
	UpdatedAtMs int64 `json:"updated_at_ms"`
}

// Server -> Client. Wraps each mirrored renderer STATE frame.
const TypeFrame = "FRAME"

type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Identity        string `json:"identity"`
	// The renderer STATE message, verbatim.
	State json.RawMessage `json:"state"`
}
