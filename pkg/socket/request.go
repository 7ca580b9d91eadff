package socket

import (
	"encoding/json"
	"fmt"
)

// Request actions understood by the server. The wire method is always
// "<subject>.<action>".
const (
	ActionSubscribe = "subscribe"
	ActionQuery     = "query"
	ActionSign      = "sign"
	ActionPing      = "ping"
	ActionTime      = "time"
)

// Request is an immutable outbound request. The correlation id is assigned
// by the session at send time, not at construction time, so a request that
// is replayed after a reconnect always goes out with a fresh id.
type Request struct {
	ID      int64
	Subject string
	Action  string
	Signed  bool
	Params  []interface{}
}

// NewRequest creates a request with no id assigned yet
func NewRequest(subject, action string, signed bool, params ...interface{}) Request {
	return Request{
		Subject: subject,
		Action:  action,
		Signed:  signed,
		Params:  params,
	}
}

// Method returns the wire method string
func (r Request) Method() string {
	return r.Subject + "." + r.Action
}

// envelope is the outbound wire format
type envelope struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Marshal serializes the request into its wire envelope. The id must have
// been assigned first.
func (r Request) Marshal() ([]byte, error) {
	params := r.Params
	if params == nil {
		params = []interface{}{}
	}
	data, err := json.Marshal(envelope{
		ID:     r.ID,
		Method: r.Method(),
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", r.Method(), err)
	}
	return data, nil
}
