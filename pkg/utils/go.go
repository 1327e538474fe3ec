// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package utils

import (
	"context"
	"runtime/debug"
	"time"
)

// Go runs fn on a new goroutine with a recover guard so a panicking
// background task cannot take the process down. fn receives the caller's
// context and is expected to honor it.
func Go(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				debug.PrintStack()
			}
		}()
		fn(ctx)
	}()
}

// Sleep blocks for d or until ctx is cancelled, reporting whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
