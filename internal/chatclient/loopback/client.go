// Package loopback is a session client driver that talks to no network. It is
// used for local runs and smoke tests: the first start of a storage path
// issues an auth challenge that completes on its own after a delay, and the
// completed auth is remembered in the storage path.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
)

// DriverName is the registry name of this driver.
const DriverName = "loopback"

const (
	markerFile      = "loopback.auth"
	storageDirMode  = 0o700
	markerFileMode  = 0o600
	defaultAuthWait = 2 * time.Second
)

var errNotReady = errors.New("loopback client is not authenticated")

// Register adds the loopback driver to r.
func Register(r *chatclient.Registry, authDelay time.Duration) {
	if authDelay <= 0 {
		authDelay = defaultAuthWait
	}
	r.Register(DriverName, func(opts chatclient.Options) (chatclient.Client, error) {
		return New(opts, authDelay), nil
	})
}

// Client is the loopback session client.
type Client struct {
	opts      chatclient.Options
	authDelay time.Duration

	mu        sync.Mutex
	ready     bool
	destroyed bool
	authTimer *time.Timer
}

// New creates a loopback client.
func New(opts chatclient.Options, authDelay time.Duration) *Client {
	if opts.OnEvent == nil {
		opts.OnEvent = func(chatclient.Event) {}
	}
	return &Client{opts: opts, authDelay: authDelay}
}

// Initialize prepares the storage path and starts authentication.
func (c *Client) Initialize(ctx context.Context) error {
	if c.opts.StoragePath == "" {
		return errors.New("loopback client needs a storage path")
	}
	if err := os.MkdirAll(c.opts.StoragePath, storageDirMode); err != nil {
		return fmt.Errorf("create storage path: %w", err)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return errors.New("loopback client destroyed")
	}
	c.mu.Unlock()

	if _, err := os.Stat(c.markerPath()); err == nil {
		c.completeAuth()
		return nil
	}

	c.opts.OnEvent(chatclient.Event{
		Kind:      chatclient.EventAuthChallenge,
		Challenge: fmt.Sprintf("loopback:%s:%s", c.opts.ID, uuid.NewString()),
	})

	c.mu.Lock()
	c.authTimer = time.AfterFunc(c.authDelay, c.completeAuth)
	c.mu.Unlock()
	return nil
}

func (c *Client) completeAuth() {
	c.mu.Lock()
	if c.destroyed || c.ready {
		c.mu.Unlock()
		return
	}
	if err := os.WriteFile(c.markerPath(), []byte(time.Now().UTC().Format(time.RFC3339)), markerFileMode); err != nil {
		c.mu.Unlock()
		c.opts.OnEvent(chatclient.Event{Kind: chatclient.EventAuthFailed, Reason: err.Error()})
		return
	}
	c.ready = true
	c.mu.Unlock()

	c.opts.OnEvent(chatclient.Event{Kind: chatclient.EventReady})
}

// SendMessage accepts the message and returns a receipt.
func (c *Client) SendMessage(ctx context.Context, to, body string) (*chatclient.Receipt, error) {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if !ready {
		return nil, errNotReady
	}
	if to == "" {
		return nil, errors.New("recipient cannot be empty")
	}
	return &chatclient.Receipt{
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
	}, nil
}

// Logout forgets the stored auth.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	if err := os.Remove(c.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove auth marker: %w", err)
	}
	c.opts.OnEvent(chatclient.Event{Kind: chatclient.EventDisconnected, Reason: "logged out"})
	return nil
}

// Destroy stops pending authentication. Stored auth is kept.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.destroyed = true
	c.ready = false
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	return nil
}

func (c *Client) markerPath() string {
	return filepath.Join(c.opts.StoragePath, markerFile)
}
