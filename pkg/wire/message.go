// Package wire implements the duplex-channel frame codec: a single
// JSON-framed message stream per client carrying Request, Response, and
// Event frames, discriminated by which of the three name fields is set.
package wire

import (
	"encoding/json"
	"fmt"
)

// Discriminator names the three frame kinds that can appear on the wire.
type Discriminator string

const (
	DiscriminatorRequest  Discriminator = "request"
	DiscriminatorResponse Discriminator = "response"
	DiscriminatorEvent    Discriminator = "event"
)

// RawFrame is the minimal shape needed to tell which concrete frame a raw
// JSON blob decodes into, before unmarshalling the rest of it.
type RawFrame struct {
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
	Event    string `json:"event,omitempty"`
	ID       uint64 `json:"id,omitempty"`
}

// Discriminator reports which of Request/Response/Event this raw frame is,
// and the frame's own "name" field (the RPC name for request/response, the
// event name for event frames).
func (r RawFrame) Discriminator() (Discriminator, string, bool) {
	switch {
	case r.Request != "":
		return DiscriminatorRequest, r.Request, true
	case r.Response != "":
		return DiscriminatorResponse, r.Response, true
	case r.Event != "":
		return DiscriminatorEvent, r.Event, true
	default:
		return "", "", false
	}
}

// Request is a client→server RPC request frame.
type Request struct {
	Request string          `json:"request"`
	ID      uint64          `json:"id"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response is a server→client RPC response frame.
type Response struct {
	Response string          `json:"response"`
	ID       uint64          `json:"id"`
	Result   bool            `json:"result"`
	Messages []string        `json:"messages,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Event is a server→client unsolicited notification frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OK builds a successful Response carrying data (nil-able).
func OK(requestName string, id uint64, data interface{}) (*Response, error) {
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}
	return &Response{Response: requestName, ID: id, Result: true, Data: raw}, nil
}

// Failed builds a failed Response carrying human-readable reasons.
func Failed(requestName string, id uint64, messages []string) *Response {
	return &Response{Response: requestName, ID: id, Result: false, Messages: messages}
}

// NewEvent builds an Event frame, marshalling payload.
func NewEvent(name string, payload interface{}) (*Event, error) {
	raw, err := encode(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Event: name, Data: raw}, nil
}

// Decode unmarshals a Request's Args into v. A nil Args decodes into v
// untouched (handlers with no arguments pass a pointer to an empty struct).
func (r *Request) Decode(v interface{}) error {
	if len(r.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("decoding args for %s: %w", r.Request, err)
	}
	return nil
}

func encode(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response payload: %w", err)
	}
	return raw, nil
}

// MarshalFrame marshals any of *Request, *Response, *Event to its wire JSON.
func MarshalFrame(frame interface{}) ([]byte, error) {
	return json.Marshal(frame)
}
