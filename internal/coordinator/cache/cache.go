package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// ErrEmptyUserID is returned when a user ID is empty
	ErrEmptyUserID = "userID cannot be empty"
)

// ErrNotFound is returned by Get when no live challenge exists for a user.
var ErrNotFound = errors.New("challenge not found")

// ChallengeCache holds pending auth challenges per user with TTL-based expiration.
// It satisfies storage.QRStore.
type ChallengeCache struct {
	challenges map[string]*CachedChallenge
	mu         sync.RWMutex
	ttl        time.Duration
	now        func() time.Time
	done       chan struct{} // Signal to stop cleanup goroutine
	closeOnce  sync.Once
}

// CachedChallenge represents a stored challenge with expiration metadata
type CachedChallenge struct {
	Payload   string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// NewChallengeCache creates a new challenge cache with the specified TTL
// Starts a background cleanup goroutine that removes expired challenges
func NewChallengeCache(ttl time.Duration) *ChallengeCache {
	cache := &ChallengeCache{
		challenges: make(map[string]*CachedChallenge),
		ttl:        ttl,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// Save stores the latest challenge for a user, replacing any earlier one
func (c *ChallengeCache) Save(ctx context.Context, userID, challenge string) error {
	if userID == "" {
		return errors.New(ErrEmptyUserID)
	}
	if challenge == "" {
		return fmt.Errorf("challenge for %s cannot be empty", userID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.challenges[userID] = &CachedChallenge{
		Payload:   challenge,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	return nil
}

// Get returns the live challenge for a user
func (c *ChallengeCache) Get(ctx context.Context, userID string) (*CachedChallenge, error) {
	if userID == "" {
		return nil, errors.New(ErrEmptyUserID)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.challenges[userID]
	if !exists || c.now().After(cached.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	cp := *cached
	return &cp, nil
}

// Clear removes a user's challenge; unknown users are ignored
func (c *ChallengeCache) Clear(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.challenges, userID)
	return nil
}

// Size returns the current number of cached challenges
func (c *ChallengeCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.challenges)
}

// Close stops the cleanup goroutine
func (c *ChallengeCache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// cleanupLoop periodically removes expired challenges
func (c *ChallengeCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// cleanup removes expired challenges
func (c *ChallengeCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for userID, cached := range c.challenges {
		if now.After(cached.ExpiresAt) {
			delete(c.challenges, userID)
		}
	}
}
