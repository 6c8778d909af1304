package cache

import (
	"context"
)

// ChallengeReader exposes pending challenges to status queries without
// granting write access
type ChallengeReader interface {
	Get(ctx context.Context, userID string) (*CachedChallenge, error)
}

var _ ChallengeReader = (*ChallengeCache)(nil)
