// Package ws provides the websocket transport for the chat service: connection
// upgrade, authentication at connect time, read/write pumps and packet framing.
// Everything above the transport (rooms, presence, typing) lives in the chat
// coordinator, which plugs in through the Handler interface.
package ws

import (
	"net/http"

	"github.com/alliance74/african-farm-route/pkg/auth"
)

// Conn is a live bidirectional channel to one client process.
type Conn interface {
	// ID returns the unique connection handle. A single identity may open
	// several connections over its lifetime; each gets its own handle.
	ID() string
	// Identity returns the identity the connection authenticated as.
	Identity() auth.Identity
	// Send queues a packet for delivery. It never blocks; if the peer cannot
	// keep up the connection is torn down, and sending on a torn-down
	// connection is a no-op. Delivery is best effort.
	Send(p *Packet)
}

// Handler receives connection lifecycle events and inbound packets.
// OnPacket is invoked from the connection's read goroutine, so handlers for
// different connections run concurrently.
type Handler interface {
	OnConnect(Conn)
	OnPacket(Conn, *Packet)
	OnDisconnect(Conn)
}

// Authenticator validates the credential presented at connect time.
// It must be safe for concurrent use.
type Authenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}
