// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_reconciler

import (
	"context"
	"sync"
	"time"

	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

// defaultAutoCommit is the silence window after which an unsuperseded user
// partial is committed as final, so a long utterance is not lost when the
// voice service never sends an explicit final event.
const defaultAutoCommit = 1600 * time.Millisecond

// minAnswerLength separates substantive user answers from throwaway acks in
// the feedback payload.
const minAnswerLength = 10

// Reconciler maintains the ordered, deduplicated conversation transcript for
// one call session plus the single live user partial buffer.
//
// Discipline: the transcript is append-only in arrival order; committed
// messages are never reordered or rewritten. Duplicate suppression is
// adjacency-only: a repeat is dropped only when role and folded content
// match the immediately preceding committed message (the interviewer may
// legitimately re-ask a question later in the call). For the assistant role
// a dedicated last-utterance tracker is consulted as well; it bridges
// uncommitted user partial activity between two identical assistant prompts
// but is cleared by a committed user message, so a prompt repeated after a
// real answer is kept.
type Reconciler struct {
	logger commons.Logger

	mu            sync.Mutex
	messages      []internal_type.TranscriptMessage
	lastAssistant string // folded content of the last assistant utterance

	partial         *partialBuffer
	autoCommitDelay time.Duration
	autoCommitGen   uint64
	autoCommitTimer *time.Timer
	mutations       uint64
	ctx             context.Context
}

// partialBuffer is the single live, uncommitted user utterance.
type partialBuffer struct {
	content       string
	lastUpdatedAt time.Time
}

// New creates a reconciler bound to the session's context; timers armed by
// the reconciler die with the session and cannot leak into the next one.
// Recognized options: "transcript.autocommit.ms".
func New(ctx context.Context, logger commons.Logger, opts utils.Option) *Reconciler {
	return &Reconciler{
		logger:          logger,
		ctx:             ctx,
		autoCommitDelay: opts.GetDuration("transcript.autocommit.ms", defaultAutoCommit),
	}
}

// AppendFinal records a confirmed utterance. Duplicates of the immediately
// preceding committed message (same role, same folded content) are dropped;
// a matching pending partial is cleared rather than double-committed.
func (r *Reconciler) AppendFinal(role internal_type.Role, text string, ts time.Time) {
	text = utils.NormalizeWhitespace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(role, text, ts)
}

// UpdatePartial replaces the live user partial buffer and (re)arms the
// auto-commit timer.
func (r *Reconciler) UpdatePartial(text string, ts time.Time) {
	text = utils.NormalizeWhitespace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial = &partialBuffer{content: text, lastUpdatedAt: ts}
	r.mutations++
	r.armAutoCommitLocked()
}

// FlushPartial immediately commits any pending partial as a final user
// message. Called at session end and by the stabilization gate.
func (r *Reconciler) FlushPartial() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitPartialLocked()
}

// Snapshot returns a copy of the committed transcript.
func (r *Reconciler) Snapshot() []internal_type.TranscriptMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]internal_type.TranscriptMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of committed messages.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Mutations returns the transcript mutation counter. Every commit and every
// partial change bumps it; the stabilization gate polls this to detect an
// idle transcript.
func (r *Reconciler) Mutations() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutations
}

// Close cancels the auto-commit timer. The transcript remains readable.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoCommitGen++
	if r.autoCommitTimer != nil {
		r.autoCommitTimer.Stop()
		r.autoCommitTimer = nil
	}
}

// appendLocked is the single commit path for final messages.
func (r *Reconciler) appendLocked(role internal_type.Role, text string, ts time.Time) {
	folded := utils.FoldContent(text)

	if n := len(r.messages); n > 0 {
		last := r.messages[n-1]
		if last.Role == role && utils.FoldContent(last.Content) == folded {
			r.logger.Debugf("transcript: suppressed adjacent duplicate (%s)", role)
			return
		}
	}
	if role == internal_type.RoleAssistant && folded == r.lastAssistant {
		r.logger.Debugf("transcript: suppressed repeated assistant utterance")
		return
	}

	r.messages = append(r.messages, internal_type.TranscriptMessage{
		Role:      role,
		Content:   text,
		Timestamp: ts,
		IsAnswer:  role == internal_type.RoleUser && len(text) > minAnswerLength,
	})
	r.mutations++

	switch role {
	case internal_type.RoleAssistant:
		r.lastAssistant = folded
	case internal_type.RoleUser:
		// a committed answer makes a later identical prompt a real repeat
		r.lastAssistant = ""
	}
	if r.partial != nil && utils.FoldContent(r.partial.content) == folded {
		r.clearPartialLocked()
	}
}

// commitPartialLocked promotes the pending partial to a final user message.
func (r *Reconciler) commitPartialLocked() {
	if r.partial == nil {
		return
	}
	p := r.partial
	r.clearPartialLocked()
	r.appendLocked(internal_type.RoleUser, p.content, p.lastUpdatedAt)
}

func (r *Reconciler) clearPartialLocked() {
	r.partial = nil
	r.autoCommitGen++
	if r.autoCommitTimer != nil {
		r.autoCommitTimer.Stop()
		r.autoCommitTimer = nil
	}
}

// armAutoCommitLocked schedules the silence auto-commit. The generation
// counter invalidates stale timers when the partial is superseded, cleared
// or the reconciler is closed.
func (r *Reconciler) armAutoCommitLocked() {
	r.autoCommitGen++
	gen := r.autoCommitGen
	if r.autoCommitTimer != nil {
		r.autoCommitTimer.Stop()
	}
	r.autoCommitTimer = time.AfterFunc(r.autoCommitDelay, func() {
		r.autoCommit(gen)
	})
}

func (r *Reconciler) autoCommit(gen uint64) {
	if r.ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.autoCommitGen || r.partial == nil {
		return
	}
	r.logger.Debugf("transcript: auto-committing partial after silence window")
	r.commitPartialLocked()
}
