// Package ipc is the channel between the coordinator and its dedicated worker
// processes: one bidirectional gRPC stream per worker over a unix socket,
// carrying CBOR-encoded envelopes.
package ipc

import "time"

// Kind identifies an envelope.
type Kind string

// Worker to coordinator.
const (
	KindHello        Kind = "hello"
	KindQR           Kind = "qr"
	KindReady        Kind = "ready"
	KindAuthFailed   Kind = "auth_failed"
	KindDisconnected Kind = "disconnected"
	KindMessage      Kind = "message"
	KindResponse     Kind = "response"
)

// Coordinator to worker.
const (
	KindInit        Kind = "init"
	KindSendMessage Kind = "send_message"
	KindLogout      Kind = "logout"
	KindDisconnect  Kind = "disconnect"
)

// Envelope is the single message type on the stream. Only the fields used by
// Kind are populated.
type Envelope struct {
	Kind      Kind     `cbor:"kind"`
	RequestID string   `cbor:"request_id,omitempty"`
	UserID    string   `cbor:"user_id,omitempty"`
	Token     string   `cbor:"token,omitempty"`
	PID       int      `cbor:"pid,omitempty"`
	Driver    string   `cbor:"driver,omitempty"`
	DataDir   string   `cbor:"data_dir,omitempty"`
	To        string   `cbor:"to,omitempty"`
	Body      string   `cbor:"body,omitempty"`
	Challenge string   `cbor:"challenge,omitempty"`
	Reason    string   `cbor:"reason,omitempty"`
	Message   *Message `cbor:"message,omitempty"`
	Receipt   *Receipt `cbor:"receipt,omitempty"`
	Error     string   `cbor:"error,omitempty"`
}

// Message is an incoming chat message relayed by a worker.
type Message struct {
	ID        string    `cbor:"id"`
	From      string    `cbor:"from"`
	Body      string    `cbor:"body"`
	Timestamp time.Time `cbor:"ts"`
}

// Receipt acknowledges a send_message request.
type Receipt struct {
	MessageID string    `cbor:"message_id"`
	Timestamp time.Time `cbor:"ts"`
}

// Hello is the first envelope a worker sends after attaching.
func Hello(userID, token string, pid int) *Envelope {
	return &Envelope{Kind: KindHello, UserID: userID, Token: token, PID: pid}
}

// Init tells an attached worker which driver and data directory to use.
func Init(driver, dataDir string) *Envelope {
	return &Envelope{Kind: KindInit, Driver: driver, DataDir: dataDir}
}

// SendMessage asks a worker to deliver a message.
func SendMessage(requestID, to, body string) *Envelope {
	return &Envelope{Kind: KindSendMessage, RequestID: requestID, To: to, Body: body}
}

// Response answers the request with the given id. A non-empty errMsg marks failure.
func Response(requestID string, receipt *Receipt, errMsg string) *Envelope {
	return &Envelope{Kind: KindResponse, RequestID: requestID, Receipt: receipt, Error: errMsg}
}
