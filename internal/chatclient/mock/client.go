// Package mock provides a scriptable session client for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	To   string
	Body string
}

// Client is a mock session client for testing.
// It never touches the network; events are injected with the Emit helpers.
type Client struct {
	mu           sync.Mutex
	opts         chatclient.Options
	initErr      error
	sendErr      error
	logoutErr    error
	destroyErr   error
	sendDelay    time.Duration
	autoReady    bool
	pid          int
	initCalls    int
	logoutCalls  int
	destroyCalls int
	sent         []SentMessage
}

var (
	_ chatclient.Client      = (*Client)(nil)
	_ chatclient.ProcessInfo = (*Client)(nil)
)

// NewClient creates a mock client bound to opts.
func NewClient(opts chatclient.Options) *Client {
	if opts.OnEvent == nil {
		opts.OnEvent = func(chatclient.Event) {}
	}
	return &Client{opts: opts}
}

// Options returns the options the client was created with.
func (c *Client) Options() chatclient.Options {
	return c.opts
}

// Initialize records the call and, when auto-ready is set, emits EventReady.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.initCalls++
	err := c.initErr
	autoReady := c.autoReady
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if autoReady {
		c.EmitReady()
	}
	return nil
}

// SendMessage records the message and returns a receipt after the configured delay.
func (c *Client) SendMessage(ctx context.Context, to, body string) (*chatclient.Receipt, error) {
	c.mu.Lock()
	delay := c.sendDelay
	err := c.sendErr
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sent = append(c.sent, SentMessage{To: to, Body: body})
	c.mu.Unlock()

	return &chatclient.Receipt{
		MessageID: "mock-" + uuid.NewString(),
		Timestamp: time.Now(),
	}, nil
}

// Logout records the call.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutCalls++
	return c.logoutErr
}

// Destroy records the call.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyCalls++
	return c.destroyErr
}

// PID returns the pid set with SetPID, zero by default.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// Event helpers

// Emit delivers ev to the client's event handler.
func (c *Client) Emit(ev chatclient.Event) {
	c.opts.OnEvent(ev)
}

// EmitChallenge emits an auth challenge with the given payload.
func (c *Client) EmitChallenge(payload string) {
	c.Emit(chatclient.Event{Kind: chatclient.EventAuthChallenge, Challenge: payload})
}

// EmitReady emits EventReady.
func (c *Client) EmitReady() {
	c.Emit(chatclient.Event{Kind: chatclient.EventReady})
}

// EmitAuthFailed emits EventAuthFailed.
func (c *Client) EmitAuthFailed(reason string) {
	c.Emit(chatclient.Event{Kind: chatclient.EventAuthFailed, Reason: reason})
}

// EmitDisconnected emits EventDisconnected.
func (c *Client) EmitDisconnected(reason string) {
	c.Emit(chatclient.Event{Kind: chatclient.EventDisconnected, Reason: reason})
}

// EmitMessage emits an incoming message addressed to recipient.
func (c *Client) EmitMessage(from, recipient, body string) {
	c.Emit(chatclient.Event{
		Kind: chatclient.EventIncomingMessage,
		Message: &chatclient.IncomingMessage{
			ID:        fmt.Sprintf("in-%s", uuid.NewString()),
			From:      from,
			Recipient: recipient,
			Body:      body,
			Timestamp: time.Now(),
		},
	})
}

// Test helper methods

// SetInitError configures the client to fail Initialize.
func (c *Client) SetInitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErr = err
}

// SetSendError configures the client to fail SendMessage.
func (c *Client) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetSendDelay makes SendMessage wait before answering.
func (c *Client) SetSendDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendDelay = d
}

// SetAutoReady makes Initialize emit EventReady before returning.
func (c *Client) SetAutoReady(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoReady = v
}

// SetPID sets the pid reported through chatclient.ProcessInfo.
func (c *Client) SetPID(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pid = pid
}

// Sent returns a copy of all sent messages.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// InitCalls returns how many times Initialize ran.
func (c *Client) InitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initCalls
}

// LogoutCalls returns how many times Logout ran.
func (c *Client) LogoutCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutCalls
}

// DestroyCalls returns how many times Destroy ran.
func (c *Client) DestroyCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyCalls
}
