package tier

import (
	"context"
	"fmt"
)

// HostingType identifies the strategy used to host a user's chat session.
type HostingType string

const (
	// Shared hosts many users on one multiplexed session client.
	Shared HostingType = "shared"
	// SemiDedicated hosts a small group of users on one session client.
	SemiDedicated HostingType = "semi-dedicated"
	// Dedicated hosts one user in a separately supervised OS process.
	Dedicated HostingType = "dedicated"
	// EnterpriseShared hosts enterprise tenants on a managed multiplexed pool.
	EnterpriseShared HostingType = "enterprise-shared"
)

// PooledTypes returns the hosting types that are served by slot pools.
func PooledTypes() []HostingType {
	return []HostingType{Shared, SemiDedicated, EnterpriseShared}
}

// Valid reports whether h is a known hosting type.
func (h HostingType) Valid() bool {
	switch h {
	case Shared, SemiDedicated, Dedicated, EnterpriseShared:
		return true
	}
	return false
}

// Policy is the hosting decision for one user, produced by a Resolver.
type Policy struct {
	// TierName is the user's subscription tier, recorded on the session.
	TierName string
	// DedicatedHost forces a dedicated worker regardless of IsolationLevel.
	DedicatedHost bool
	// IsolationLevel selects the pooled hosting type when DedicatedHost is false.
	IsolationLevel string
	// MaxConnections is the tier's connection allowance, carried on the session.
	MaxConnections int
}

// HostingType maps the policy onto the hosting type that serves it.
// An empty isolation level falls back to the shared pool.
func (p Policy) HostingType() (HostingType, error) {
	if p.DedicatedHost {
		return Dedicated, nil
	}
	if p.IsolationLevel == "" {
		return Shared, nil
	}
	h := HostingType(p.IsolationLevel)
	if !h.Valid() {
		return "", fmt.Errorf("unknown isolation level %q for tier %q", p.IsolationLevel, p.TierName)
	}
	return h, nil
}

// Resolver looks up the hosting policy for a user.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Policy, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, userID string) (Policy, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, userID string) (Policy, error) {
	return f(ctx, userID)
}
