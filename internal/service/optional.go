// Package service defines the lifecycle contract shared by every wrapper
// around a backing store. A wrapper is enabled purely by configuration
// presence; Initialize performs connect-with-retry and Shutdown releases the
// connection if one was opened. Optional-tier services degrade to no-ops on
// failure instead of failing the request path.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"record-gateway/internal/common/errors"
	"record-gateway/internal/common/logging"
)

// Tier classifies how a service's startup failure is treated
type Tier int

const (
	// TierCritical aborts application bootstrap when the service cannot connect
	TierCritical Tier = iota
	// TierOptional logs the failure and leaves the feature disabled for the
	// remainder of the process lifetime
	TierOptional
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// Lifecycle is the contract every backing-store wrapper implements
type Lifecycle interface {
	// Name identifies the service in logs and errors
	Name() string
	// Enabled is derived purely from configuration presence, no I/O
	Enabled() bool
	// Initialize is a no-op when disabled, otherwise connect-with-retry
	Initialize(ctx context.Context) error
	// Shutdown releases the underlying connection if one was opened
	Shutdown() error
}

// Retry bounds the connect-with-retry sequence
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry is the standard startup retry policy
var DefaultRetry = Retry{Attempts: 3, Delay: time.Second}

// ConnectWithRetry runs probe up to r.Attempts times with r.Delay between
// attempts. Each probe should be a lightweight liveness check (ping/health).
// On exhaustion it returns an unavailable error carrying the last probe
// failure.
func ConnectWithRetry(ctx context.Context, name string, r Retry, probe func(ctx context.Context) error) error {
	if r.Attempts < 1 {
		r.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		if err := probe(ctx); err != nil {
			lastErr = err
			logging.Warn("Service connect attempt failed",
				logging.String("service", name),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", r.Attempts),
				logging.Err(err),
			)
			if attempt < r.Attempts {
				select {
				case <-ctx.Done():
					return errors.UnavailableError(name, ctx.Err())
				case <-time.After(r.Delay):
				}
			}
			continue
		}
		return nil
	}

	return errors.UnavailableError(name, lastErr)
}

// Initialize runs a service's Initialize and applies its criticality tier:
// a critical service propagates the error, an optional one logs and continues
// with the feature disabled.
func Initialize(ctx context.Context, svc Lifecycle, tier Tier) error {
	if !svc.Enabled() {
		logging.Info("Service not configured, feature disabled",
			logging.String("service", svc.Name()))
		return nil
	}

	if err := svc.Initialize(ctx); err != nil {
		if tier == TierCritical {
			return err
		}
		logging.Warn("Optional service unavailable, continuing without it",
			logging.String("service", svc.Name()),
			logging.Err(err),
		)
		return nil
	}

	logging.Info("Service connected", logging.String("service", svc.Name()))
	return nil
}

// State tracks transport-level liveness for a wrapper so later operations can
// cheaply check connectivity without a round trip. Wrappers flip it from
// driver connect hooks and operation results.
type State struct {
	connected atomic.Bool
}

// SetConnected records the current transport liveness
func (s *State) SetConnected(up bool) {
	s.connected.Store(up)
}

// Connected reports the last observed transport liveness
func (s *State) Connected() bool {
	return s.connected.Load()
}
