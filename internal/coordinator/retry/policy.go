package retry

import (
	"errors"
	"math"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
)

// Policy defines respawn backoff for crashed worker processes
type Policy struct {
	InitialDelay      time.Duration // Delay before the first respawn
	MaxDelay          time.Duration // Maximum delay between respawns
	BackoffMultiplier float64       // Growth factor per consecutive crash (1.0 = fixed delay)
}

// FixedPolicy returns a policy that always waits delay
func FixedPolicy(delay time.Duration) Policy {
	return Policy{
		InitialDelay:      delay,
		MaxDelay:          delay,
		BackoffMultiplier: 1.0,
	}
}

// DefaultPolicy returns the default respawn policy: a fixed five second delay
func DefaultPolicy() Policy {
	return FixedPolicy(config.DefaultRestartDelay)
}

// ExponentialPolicy returns a capped exponential backoff policy
func ExponentialPolicy(initial, maxDelay time.Duration, multiplier float64) Policy {
	return Policy{
		InitialDelay:      initial,
		MaxDelay:          maxDelay,
		BackoffMultiplier: multiplier,
	}
}

// FromConfig builds the policy selected by the dedicated worker configuration
func FromConfig(cfg config.DedicatedConfig) Policy {
	if cfg.RestartBackoff == config.BackoffExponential {
		return ExponentialPolicy(cfg.RestartDelay, cfg.MaxRestartDelay, cfg.RestartMultiplier)
	}
	return FixedPolicy(cfg.RestartDelay)
}

// CalculateDelay returns the delay before respawn number restartCount (zero based)
func (p *Policy) CalculateDelay(restartCount int) time.Duration {
	if restartCount <= 0 {
		return p.InitialDelay
	}

	// initialDelay * (multiplier ^ restartCount)
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(restartCount))

	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// Validate checks if the policy configuration is valid
func (p *Policy) Validate() error {
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier < 1 {
		return errors.New("BackoffMultiplier must be at least 1")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}
