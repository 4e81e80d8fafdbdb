package live

import (
	"encoding/json"
	"fmt"
)

// Frame types on the wire. Frames are JSON objects whose "t" field names
// the type; unknown fields are ignored so either side can grow.
const (
	// Client to server.
	frameEvent = "ev"   // fire a handler: {"t":"ev","i":"c1","h":"h0"}
	framePing  = "ping" // keepalive: {"t":"ping","ts":...}

	// Server to client.
	frameInit  = "init"  // session id + initial fragments
	framePatch = "patch" // seq-numbered fragment replacements
	frameErr   = "err"   // code + message
	frameBye   = "bye"   // server-initiated close with a reason
	framePong  = "pong"  // keepalive reply, echoes ts
)

// Error codes sent in err frames.
const (
	errCodeBadFrame        = "bad_frame"
	errCodeUnknownInstance = "unknown_instance"
	errCodeHandlerNotFound = "handler_not_found"
	errCodeHandlerPanic    = "handler_panic"
	errCodeRateLimited     = "rate_limited"
	errCodeRenderFailed    = "render_failed"
)

// Close reasons sent in bye frames.
const (
	byeReasonShutdown   = "shutdown"
	byeReasonServerBusy = "server_busy"
	byeReasonMountError = "mount_error"
)

// Fragment is one root component's rendered HTML, addressed by the
// instance id the client wraps it under.
type Fragment struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

// clientFrame is anything the client sends.
type clientFrame struct {
	T  string `json:"t"`
	I  string `json:"i,omitempty"`  // instance id for events
	H  string `json:"h,omitempty"`  // handler token for events
	TS int64  `json:"ts,omitempty"` // ping timestamp
}

// serverFrame is anything the server sends.
type serverFrame struct {
	T      string     `json:"t"`
	SID    string     `json:"sid,omitempty"`
	Seq    uint64     `json:"seq,omitempty"`
	Frags  []Fragment `json:"frags,omitempty"`
	Code   string     `json:"code,omitempty"`
	Msg    string     `json:"msg,omitempty"`
	Reason string     `json:"reason,omitempty"`
	TS     int64      `json:"ts,omitempty"`
}

// decodeClientFrame parses an incoming message and validates its type tag.
func decodeClientFrame(data []byte) (*clientFrame, error) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("live: malformed frame: %w", err)
	}
	if f.T == "" {
		return nil, fmt.Errorf("live: frame missing type tag")
	}
	return &f, nil
}

// encodeServerFrame serializes an outgoing frame.
func encodeServerFrame(f *serverFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("live: encode frame: %w", err)
	}
	return data, nil
}
