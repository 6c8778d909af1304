// Package chatclient defines the opaque session client that holds one
// connection to the external chat network, and the registry of drivers that
// create them.
package chatclient

import (
	"context"
	"time"
)

// Client is one connection to the chat network. Lifecycle changes are
// reported through the EventHandler supplied in Options, never through return
// values of Initialize.
type Client interface {
	// Initialize starts the connection. It returns once the client is running;
	// authentication completes later and is signalled by an EventReady.
	Initialize(ctx context.Context) error

	// SendMessage delivers body to recipient and returns the network receipt.
	SendMessage(ctx context.Context, to, body string) (*Receipt, error)

	// Logout ends the authenticated session but keeps the client usable.
	Logout(ctx context.Context) error

	// Destroy releases every resource held by the client.
	Destroy(ctx context.Context) error
}

// ProcessInfo is implemented by clients backed by an OS process (for example a
// headless browser) so the pool can protect that process from reapers.
type ProcessInfo interface {
	PID() int
}

// Receipt acknowledges an outbound message.
type Receipt struct {
	MessageID string
	Timestamp time.Time
}

// EventKind enumerates client lifecycle and traffic events.
type EventKind string

const (
	EventAuthChallenge   EventKind = "auth_challenge"
	EventReady           EventKind = "ready"
	EventAuthFailed      EventKind = "auth_failed"
	EventDisconnected    EventKind = "disconnected"
	EventIncomingMessage EventKind = "incoming_message"
)

// Event is emitted by a Client. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Challenge string           // EventAuthChallenge
	Reason    string           // EventAuthFailed, EventDisconnected
	Message   *IncomingMessage // EventIncomingMessage
}

// IncomingMessage is a message received from the chat network. Recipient is
// the platform user the message is addressed to; multiplexed clients use it
// to route messages to the right tenant.
type IncomingMessage struct {
	ID        string
	From      string
	Recipient string
	Body      string
	Timestamp time.Time
}

// EventHandler receives client events. Implementations must not block.
type EventHandler func(Event)

// Options configures a new client.
type Options struct {
	// ID names the client in logs and storage.
	ID string

	// StoragePath is the directory where the client keeps its auth state.
	// Reusing a path lets a fresh client resume without re-authenticating.
	StoragePath string

	// OnEvent receives lifecycle and message events.
	OnEvent EventHandler
}
