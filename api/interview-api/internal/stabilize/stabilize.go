// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_stabilize

import (
	"context"
	"time"

	internal_reconciler "github.com/preporbit/voice-api/api/interview-api/internal/reconciler"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

const (
	defaultPollInterval  = 300 * time.Millisecond
	defaultIdleThreshold = 1200 * time.Millisecond
	defaultMaxWait       = 3 * time.Second
)

// Gate delays feedback submission until the transcript has stopped changing.
// Transcript events routinely trail the provider's call-end signal by a
// second or two; submitting the instant the call ends would truncate the
// last answer.
type Gate struct {
	logger        commons.Logger
	pollInterval  time.Duration
	idleThreshold time.Duration
	maxWait       time.Duration
}

// NewGate builds a gate from options. Recognized keys:
// "stabilize.poll.ms", "stabilize.idle.ms", "stabilize.max.ms".
func NewGate(logger commons.Logger, opts utils.Option) *Gate {
	return &Gate{
		logger:        logger,
		pollInterval:  opts.GetDuration("stabilize.poll.ms", defaultPollInterval),
		idleThreshold: opts.GetDuration("stabilize.idle.ms", defaultIdleThreshold),
		maxWait:       opts.GetDuration("stabilize.max.ms", defaultMaxWait),
	}
}

// WaitForStable blocks until the reconciler's mutation counter has been
// unchanged for the idle threshold, or the max wait elapses, whichever comes
// first. Any lingering partial is flushed before returning so the final
// snapshot includes it. Returns early on context cancellation, still
// flushing the partial.
func (g *Gate) WaitForStable(ctx context.Context, rec *internal_reconciler.Reconciler) {
	defer rec.FlushPartial()

	deadline := time.Now().Add(g.maxWait)
	lastCount := rec.Mutations()
	lastChange := time.Now()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Debugf("stabilize: context cancelled, resolving early")
			return
		case now := <-ticker.C:
			if count := rec.Mutations(); count != lastCount {
				lastCount = count
				lastChange = now
			}
			if now.Sub(lastChange) >= g.idleThreshold {
				g.logger.Debugf("stabilize: transcript idle for %s, resolving", g.idleThreshold)
				return
			}
			if now.After(deadline) {
				g.logger.Warnf("stabilize: transcript still changing after %s, resolving anyway", g.maxWait)
				return
			}
		}
	}
}
