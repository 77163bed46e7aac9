// Package wireformat translates application messages to and from the text
// payloads carried inside WebSocket text frames. The default Format encodes
// a discriminator field the same way the teacher's Socket.IO envelope
// (heartbeat.WSMessage{Type, Payload}) tags every message with a MessageType,
// except framed as a single flat JSON object rather than a Socket.IO packet.
package wireformat

import (
	"encoding/json"
	"fmt"

	"github.com/anthony-cros/hookup/envelope"
)

// Format classifies inbound text payloads and renders outbound ack-capable
// messages. Binary messages never pass through a Format — they bypass the
// codec entirely, per the wire contract.
type Format interface {
	// ParseInMessage classifies a text frame payload. Unparseable payloads
	// must yield TextMessage(raw) rather than an error — the transport
	// stays up on a bad payload.
	ParseInMessage(text string) envelope.InMessage

	// Render serializes an outbound message to a text payload.
	Render(out envelope.OutMessage) (string, error)
}

// discriminator names the envelope's "type" field values.
const (
	kindText       = "text"
	kindJSON       = "json"
	kindAck        = "ack"
	kindAckRequest = "ack_request"
)

// wireEnvelope is the default on-the-wire JSON shape:
// {"type": "...", "id": 0, "payload": ...}
type wireEnvelope struct {
	Type    string          `json:"type"`
	ID      envelope.AckID  `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JSONFormat is the default Format: a flat JSON object with a "type"
// discriminator field, as described in spec.md §6.
type JSONFormat struct{}

// ParseInMessage implements Format.
func (JSONFormat) ParseInMessage(text string) envelope.InMessage {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return envelope.TextMessage{Text: text}
	}

	switch env.Type {
	case kindText:
		var s string
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return envelope.TextMessage{Text: text}
		}
		return envelope.TextMessage{Text: s}

	case kindJSON:
		return envelope.JSONMessage{Data: append([]byte(nil), env.Payload...)}

	case kindAck:
		return envelope.Ack{ID: env.ID}

	case kindAckRequest:
		inner, err := parseInner(env.Payload)
		if err != nil {
			return envelope.TextMessage{Text: text}
		}
		return envelope.AckRequest{ID: env.ID, Inner: inner}

	default:
		return envelope.TextMessage{Text: text}
	}
}

// innerEnvelope is how an AckRequest's wrapped payload nests its own
// discriminated message.
type innerEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func parseInner(raw json.RawMessage) (envelope.InMessage, error) {
	var inner innerEnvelope
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}
	switch inner.Type {
	case kindText:
		var s string
		if err := json.Unmarshal(inner.Payload, &s); err != nil {
			return nil, err
		}
		return envelope.TextMessage{Text: s}, nil
	case kindJSON:
		return envelope.JSONMessage{Data: append([]byte(nil), inner.Payload...)}, nil
	default:
		return nil, fmt.Errorf("wireformat: unknown inner type %q", inner.Type)
	}
}

// Render implements Format.
func (f JSONFormat) Render(out envelope.OutMessage) (string, error) {
	switch v := out.(type) {
	case envelope.TextMessage:
		payload, err := json.Marshal(v.Text)
		if err != nil {
			return "", fmt.Errorf("wireformat: marshalling text payload: %w", err)
		}
		return marshalEnvelope(wireEnvelope{Type: kindText, Payload: payload})

	case envelope.JSONMessage:
		return marshalEnvelope(wireEnvelope{Type: kindJSON, Payload: v.Data})

	case envelope.BinaryMessage:
		return "", fmt.Errorf("wireformat: binary messages bypass the text codec")

	case envelope.Ack:
		return marshalEnvelope(wireEnvelope{Type: kindAck, ID: v.ID})

	case envelope.AckRequest:
		innerPayload, err := f.renderInner(v.Inner)
		if err != nil {
			return "", err
		}
		return marshalEnvelope(wireEnvelope{Type: kindAckRequest, ID: v.ID, Payload: innerPayload})

	default:
		return "", fmt.Errorf("wireformat: unsupported outbound message type %T", out)
	}
}

func (f JSONFormat) renderInner(in envelope.InMessage) (json.RawMessage, error) {
	switch v := in.(type) {
	case envelope.TextMessage:
		payload, err := json.Marshal(v.Text)
		if err != nil {
			return nil, fmt.Errorf("wireformat: marshalling inner text: %w", err)
		}
		return json.Marshal(innerEnvelope{Type: kindText, Payload: payload})
	case envelope.JSONMessage:
		return json.Marshal(innerEnvelope{Type: kindJSON, Payload: v.Data})
	default:
		return nil, fmt.Errorf("wireformat: unsupported ack-request inner type %T", in)
	}
}

func marshalEnvelope(env wireEnvelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("wireformat: marshalling envelope: %w", err)
	}
	return string(b), nil
}
