package ws

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// Packet is the wire frame exchanged with clients. The body is decoded into an
// event specific type by the handler.
type Packet struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewPacket builds a packet with payload marshalled as the body.
func NewPacket(t string, payload any) (*Packet, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal packet body: %w", err)
	}
	return &Packet{Type: t, Body: b}, nil
}

func decodePacket(mt int, r io.Reader) (*Packet, error) {
	if mt != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type: %d", mt)
	}

	var packet Packet
	if err := json.NewDecoder(r).Decode(&packet); err != nil {
		return nil, fmt.Errorf("json.Decoder.Decode: %w", err)
	}
	return &packet, nil
}

func encodePacket(next func(t int) (io.WriteCloser, error), packet *Packet) error {
	w, err := next(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	defer w.Close()

	if err := json.NewEncoder(w).Encode(packet); err != nil {
		return fmt.Errorf("json.Encoder.Encode: %w", err)
	}

	return nil
}
