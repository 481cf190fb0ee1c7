package alerts

import (
	"context"
	"time"

	"fraudwatch/internal/types"
)

// Sweeper drives the two periodic background passes over the registries:
// subscription expiry on one interval, connection staleness plus retry
// redelivery on another. A sweep always runs to completion over its current
// snapshot; cancellation only prevents the next tick.
type Sweeper struct {
	subs  *SubscriptionRegistry
	conns *ConnectionRegistry

	subInterval  time.Duration
	connInterval time.Duration

	logger types.Logger
}

// NewSweeper creates a sweeper over both registries with the given periods.
func NewSweeper(subs *SubscriptionRegistry, conns *ConnectionRegistry, subInterval, connInterval time.Duration, logger types.Logger) *Sweeper {
	return &Sweeper{
		subs:         subs,
		conns:        conns,
		subInterval:  subInterval,
		connInterval: connInterval,
		logger:       logger,
	}
}

// Run blocks, firing sweeps on their intervals until ctx is cancelled. It is
// intended to be run under an errgroup; it always returns nil so a normal
// shutdown does not cancel sibling goroutines.
//
// Shutdown ordering: cancel the context (stopping the tickers) before
// releasing connections via ConnectionRegistry.Shutdown, so no sweep fires
// against a registry mid-teardown.
func (s *Sweeper) Run(ctx context.Context) error {
	subTicker := time.NewTicker(s.subInterval)
	defer subTicker.Stop()
	connTicker := time.NewTicker(s.connInterval)
	defer connTicker.Stop()

	s.logger.Info("sweeper started",
		"subscription_interval", s.subInterval.String(),
		"connection_interval", s.connInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-subTicker.C:
			s.subs.Sweep()
		case <-connTicker.C:
			s.conns.StaleSweep()
			s.conns.RetrySweep(ctx)
		}
	}
}
