package tier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Spec describes one tier in an assignments file.
type Spec struct {
	Isolation      string `yaml:"isolation"`
	DedicatedHost  bool   `yaml:"dedicated_host"`
	MaxConnections int    `yaml:"max_connections"`
}

// Assignments is the on-disk shape of a tier assignments file:
//
//	default_tier: free
//	tiers:
//	  free: {isolation: shared, max_connections: 1}
//	  business: {dedicated_host: true}
//	users:
//	  alice: business
type Assignments struct {
	DefaultTier string            `yaml:"default_tier"`
	Tiers       map[string]Spec   `yaml:"tiers"`
	Users       map[string]string `yaml:"users"`
}

// Validate checks that every referenced tier is defined and maps to a hosting type.
func (a *Assignments) Validate() error {
	if len(a.Tiers) == 0 {
		return errors.New("tier assignments define no tiers")
	}
	if a.DefaultTier == "" {
		return errors.New("default_tier is required")
	}
	if _, ok := a.Tiers[a.DefaultTier]; !ok {
		return fmt.Errorf("default_tier %q is not defined", a.DefaultTier)
	}
	for name, spec := range a.Tiers {
		if _, err := spec.policy(name).HostingType(); err != nil {
			return err
		}
	}
	for user, name := range a.Users {
		if _, ok := a.Tiers[name]; !ok {
			return fmt.Errorf("user %q assigned to undefined tier %q", user, name)
		}
	}
	return nil
}

func (s Spec) policy(name string) Policy {
	return Policy{
		TierName:       name,
		DedicatedHost:  s.DedicatedHost,
		IsolationLevel: s.Isolation,
		MaxConnections: s.MaxConnections,
	}
}

// StaticResolver resolves policies from an in-memory copy of an assignments file.
// Users without an explicit assignment get the default tier.
type StaticResolver struct {
	mu          sync.RWMutex
	defaultTier string
	tiers       map[string]Spec
	users       map[string]string
}

// NewStaticResolver builds a resolver from validated assignments.
func NewStaticResolver(a Assignments) (*StaticResolver, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	r := &StaticResolver{
		defaultTier: a.DefaultTier,
		tiers:       make(map[string]Spec, len(a.Tiers)),
		users:       make(map[string]string, len(a.Users)),
	}
	for name, spec := range a.Tiers {
		r.tiers[name] = spec
	}
	for user, name := range a.Users {
		r.users[user] = name
	}
	return r, nil
}

// ParseAssignments decodes a YAML assignments document.
func ParseAssignments(data []byte) (Assignments, error) {
	var a Assignments
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Assignments{}, fmt.Errorf("parsing tier assignments: %w", err)
	}
	return a, nil
}

// LoadStaticResolver reads and validates an assignments file.
func LoadStaticResolver(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tier assignments: %w", err)
	}
	a, err := ParseAssignments(data)
	if err != nil {
		return nil, err
	}
	return NewStaticResolver(a)
}

// Resolve returns the policy for userID.
func (r *StaticResolver) Resolve(ctx context.Context, userID string) (Policy, error) {
	if userID == "" {
		return Policy{}, errors.New("user ID cannot be empty")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.users[userID]
	if !ok {
		name = r.defaultTier
	}
	return r.tiers[name].policy(name), nil
}

// Assign moves userID to tierName. The change applies to the next connect.
func (r *StaticResolver) Assign(userID, tierName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tiers[tierName]; !ok {
		return fmt.Errorf("undefined tier %q", tierName)
	}
	r.users[userID] = tierName
	return nil
}

// TierNames returns the defined tier names in sorted order.
func (r *StaticResolver) TierNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tiers))
	for name := range r.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultAssignments is used when no assignments file is configured: every
// user lands on a single shared tier.
func DefaultAssignments() Assignments {
	return Assignments{
		DefaultTier: "free",
		Tiers: map[string]Spec{
			"free": {Isolation: string(Shared), MaxConnections: 1},
		},
	}
}
