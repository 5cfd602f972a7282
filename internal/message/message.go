// Package message implements the wire codec described in the broker's
// message protocol: a single tagged-union frame with a header tag and a
// string body. Nested payloads (Endpoints, ids) travel JSON-in-string in
// Body so that participants can re-emit it verbatim for relay without
// re-parsing it first.
package message

import (
	"encoding/json"

	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
)

// Header identifies the kind of frame being carried.
type Header string

const (
	HB    Header = "HB"
	ACK   Header = "ACK"
	PUB   Header = "PUB"
	CLAIM Header = "CLAIM"
	COL   Header = "COL"
	MSG   Header = "MSG"
	NULL  Header = "NULL"
)

var valid = map[Header]bool{
	HB: true, ACK: true, PUB: true, CLAIM: true, COL: true, MSG: true, NULL: true,
}

// Message is the frame exchanged between participants and the broker over
// either transport.
type Message struct {
	Header Header `json:"header"`
	Body   string `json:"body"`
}

// Encode serializes a Message to its wire form.
func Encode(m Message) ([]byte, error) {
	if !valid[m.Header] {
		return nil, nsmerr.Protocolf("unknown header %q", m.Header)
	}
	return json.Marshal(m)
}

// Decode parses a wire frame into a Message, rejecting malformed JSON or an
// unrecognized header.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, nsmerr.Protocolf("decode message: %w", err)
	}
	if !valid[m.Header] {
		return Message{}, nsmerr.Protocolf("unknown header %q", m.Header)
	}
	return m, nil
}

// New builds a Message, JSON-encoding payload into the body. Used by callers
// that carry a structured Endpoint or id rather than a free-form string.
func New(h Header, payload any) (Message, error) {
	switch v := payload.(type) {
	case string:
		return Message{Header: h, Body: v}, nil
	case nil:
		return Message{Header: h, Body: ""}, nil
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return Message{}, nsmerr.Protocolf("encode body: %w", err)
		}
		return Message{Header: h, Body: string(body)}, nil
	}
}

// DecodeBody unmarshals m.Body into v, for callers expecting a JSON payload
// rather than a plain string (e.g. ACK bodies carrying a serialized Endpoint).
func DecodeBody(m Message, v any) error {
	if m.Body == "" {
		return nsmerr.Protocolf("empty body")
	}
	if err := json.Unmarshal([]byte(m.Body), v); err != nil {
		return nsmerr.Protocolf("decode body: %w", err)
	}
	return nil
}
