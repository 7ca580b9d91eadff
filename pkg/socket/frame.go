package socket

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FrameKind tags an inbound frame with its classification. Every frame read
// off the wire is classified exactly once and then matched exhaustively.
type FrameKind int

const (
	// FramePong is a keep-alive acknowledgment, recognized by the bare
	// "pong" marker rather than by id correlation
	FramePong FrameKind = iota

	// FramePush is an unsolicited subscription update ("<subject>.update")
	FramePush

	// FrameResponse answers a previously sent request by id
	FrameResponse

	// FrameUnroutable is a frame this client cannot correlate; it is
	// logged and discarded, never an error
	FrameUnroutable
)

// String returns the string representation of a frame kind
func (k FrameKind) String() string {
	switch k {
	case FramePong:
		return "pong"
	case FramePush:
		return "push"
	case FrameResponse:
		return "response"
	default:
		return "unroutable"
	}
}

// Frame is the classified form of an inbound message
type Frame struct {
	Kind FrameKind

	// ID is set for response frames
	ID int64

	// Subject and Params are set for push frames
	Subject string
	Params  []json.RawMessage

	// Result and Err are set for response frames; at most one is non-nil
	Result json.RawMessage
	Err    *ServerError
}

const pushSuffix = ".update"

var pongMarker = []byte(`"pong"`)

// rawFrame mirrors the inbound wire envelope before classification. Some
// endpoints deliver the payload under "data" instead of "result".
type rawFrame struct {
	ID     *int64            `json:"id"`
	Method string            `json:"method"`
	Error  *ServerError      `json:"error"`
	Result json.RawMessage   `json:"result"`
	Data   json.RawMessage   `json:"data"`
	Params []json.RawMessage `json:"params"`
}

// isNull reports whether a raw payload is absent or the JSON null literal
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Classify decodes an inbound message into a tagged frame. Malformed input
// is classified as unroutable rather than returned as an error so the
// dispatch path never stops on junk the server may send.
func Classify(data []byte) Frame {
	if bytes.Equal(bytes.TrimSpace(data), pongMarker) {
		return Frame{Kind: FramePong}
	}

	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{Kind: FrameUnroutable}
	}

	// A "pong" result is a keep-alive ack even when the server echoes the
	// ping id back
	if bytes.Equal(bytes.TrimSpace(raw.Result), pongMarker) {
		return Frame{Kind: FramePong}
	}

	if subject, ok := strings.CutSuffix(raw.Method, pushSuffix); ok && subject != "" {
		return Frame{
			Kind:    FramePush,
			Subject: subject,
			Params:  raw.Params,
		}
	}

	if raw.ID == nil {
		return Frame{Kind: FrameUnroutable}
	}

	frame := Frame{
		Kind: FrameResponse,
		ID:   *raw.ID,
	}
	if raw.Error != nil {
		frame.Err = raw.Error
	} else if !isNull(raw.Result) {
		frame.Result = raw.Result
	} else {
		frame.Result = raw.Data
	}
	return frame
}
