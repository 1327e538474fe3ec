// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	internal_callstore "github.com/preporbit/voice-api/api/interview-api/internal/callstore"
	internal_feedback "github.com/preporbit/voice-api/api/interview-api/internal/feedback"
	internal_normalizer "github.com/preporbit/voice-api/api/interview-api/internal/normalizer"
	internal_reconciler "github.com/preporbit/voice-api/api/interview-api/internal/reconciler"
	internal_stabilize "github.com/preporbit/voice-api/api/interview-api/internal/stabilize"
	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	generator_client "github.com/preporbit/voice-api/pkg/clients/generator"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

const defaultSettleDelay = 500 * time.Millisecond

// ErrSessionActive is returned when a start request arrives while a session
// is still live.
var ErrSessionActive = errors.New("session: a live session already exists")

// ErrNoSession is returned for operations that need a live session when
// there is none.
var ErrNoSession = errors.New("session: no live session")

// normalEndMarkers are error texts from the voice service that mean the
// call ended for an expected reason and should flow into the normal
// finalization path.
var normalEndMarkers = []string{
	"meeting has ended",
	"ejected",
	"call-ended",
	"customer-ended-call",
}

// SubmitterFactory builds a fresh feedback submitter per session so the
// at-most-once flags reset exactly when the transcript does.
type SubmitterFactory func() *internal_feedback.Submitter

// Controller is the per-interview lifecycle state machine. It owns the
// session record and wires voice-service events through the normalizer into
// the reconciler, and on termination runs the stabilization gate followed by
// feedback submission.
//
// Event handling is serialized by a mutex; the voice stream reader and the
// HTTP event endpoint may both deliver events.
type Controller struct {
	logger    commons.Logger
	generator generator_client.GeneratorServiceClient
	store     *internal_callstore.Store
	gate      *internal_stabilize.Gate
	newSub    SubmitterFactory

	settleDelay time.Duration
	rootCtx     context.Context

	mu        sync.Mutex
	status    internal_type.CallStatus
	session   *internal_type.CallSession
	rec       *internal_reconciler.Reconciler
	submitter *internal_feedback.Submitter

	interviewID string
	userID      string

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	finished      chan struct{}
}

// NewController wires a lifecycle controller. generator and store may be nil
// in degraded deployments; everything else is required. Recognized options:
// "session.settle.ms" plus the reconciler and gate keys.
func NewController(
	ctx context.Context,
	logger commons.Logger,
	generator generator_client.GeneratorServiceClient,
	store *internal_callstore.Store,
	newSub SubmitterFactory,
	opts utils.Option,
) *Controller {
	return &Controller{
		logger:      logger,
		generator:   generator,
		store:       store,
		gate:        internal_stabilize.NewGate(logger, opts),
		newSub:      newSub,
		settleDelay: opts.GetDuration("session.settle.ms", defaultSettleDelay),
		rootCtx:     ctx,
		status:      internal_type.StatusInactive,
	}
}

// Start moves the controller to CONNECTING and kicks off question
// generation. The voice channel is opened by the caller once Start returns;
// the session record itself is created on the provider's call-start event.
func (c *Controller) Start(ctx context.Context, interviewID, userID string, gen *generator_client.GenerateRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case internal_type.StatusConnecting, internal_type.StatusActive, internal_type.StatusEnding:
		return ErrSessionActive
	}

	c.status = internal_type.StatusConnecting
	c.interviewID = interviewID
	c.userID = userID
	c.logger.Infof("session: connecting interview %s for user %s", interviewID, userID)

	if c.generator != nil {
		req := gen
		utils.Go(c.rootCtx, func(goCtx context.Context) {
			if _, err := c.generator.GenerateQuestions(goCtx, interviewID, req); err != nil {
				// generation is best effort, the interview proceeds regardless
				c.logger.Warnf("session: question generation failed: %v", err)
			}
		})
	}
	return nil
}

// Stop is the manual end request. A CONNECTING session is torn down
// directly; an ACTIVE session goes through the full finalization path.
// Stopping cancels further event processing but lets an already running
// stabilization or retry sequence finish.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case internal_type.StatusConnecting:
		c.status = internal_type.StatusInactive
		c.logger.Infof("session: stopped before call start")
		return nil
	case internal_type.StatusActive:
		c.beginEndingLocked("manual-stop")
		return nil
	case internal_type.StatusEnding:
		return nil
	default:
		return ErrNoSession
	}
}

// HandleEvent routes one voice-service event. Unrecognized or textless
// events are ignored; events arriving after the session moved past ENDING
// are dropped.
func (c *Controller) HandleEvent(ev internal_type.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case internal_type.EventCallStart:
		c.activateLocked(ev.Timestamp)
	case internal_type.EventCallEnd:
		if c.status == internal_type.StatusActive {
			c.beginEndingLocked("call-ended")
		}
	case internal_type.EventError:
		c.handleErrorLocked(ev)
	case internal_type.EventSpeechStart, internal_type.EventSpeechEnd:
		// speech boundaries carry no text, transcript events do the work
	default:
		c.handleTranscriptLocked(ev)
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() internal_type.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the session record and committed transcript, or
// ErrNoSession before the first call-start.
func (c *Controller) Snapshot() (internal_type.CallSession, []internal_type.TranscriptMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return internal_type.CallSession{}, nil, ErrNoSession
	}
	return *c.session, c.rec.Snapshot(), nil
}

// activateLocked creates the session record and resets every per-session
// structure. A call-start during a live session tears the old one down
// first so history never leaks across sessions.
func (c *Controller) activateLocked(ts time.Time) {
	if c.status == internal_type.StatusEnding {
		c.logger.Warnf("session: call-start ignored while finalizing")
		return
	}

	c.teardownLocked()
	c.session = internal_type.NewCallSession(c.interviewID, c.userID, ts)
	c.sessionCtx, c.sessionCancel = context.WithCancel(c.rootCtx)
	c.rec = internal_reconciler.New(c.sessionCtx, c.logger, nil)
	c.submitter = c.newSub()
	c.finished = make(chan struct{})
	c.status = internal_type.StatusActive
	c.logger.Infof("session: call %s active for interview %s", c.session.ID, c.interviewID)
}

func (c *Controller) handleTranscriptLocked(ev internal_type.Event) {
	if c.status != internal_type.StatusActive && c.status != internal_type.StatusEnding {
		return
	}

	text := internal_normalizer.Normalize(ev.Payload)
	if text == "" {
		return
	}

	switch {
	case ev.IsPartialFlavored():
		// only user speech is buffered, assistant interim chunks are noise
		if ev.Role == internal_type.RoleUser {
			c.rec.UpdatePartial(text, ev.Timestamp)
		}
	case ev.IsFinalFlavored():
		c.rec.AppendFinal(ev.Role, text, ev.Timestamp)
	}
}

func (c *Controller) handleErrorLocked(ev internal_type.Event) {
	if c.status != internal_type.StatusConnecting && c.status != internal_type.StatusActive {
		return
	}

	detail := internal_normalizer.Normalize(ev.Payload)
	if isNormalEnd(detail) && c.status == internal_type.StatusActive {
		c.logger.Infof("session: normal end signaled via error channel: %s", detail)
		c.beginEndingLocked("normal-end")
		return
	}

	c.logger.Errorf("session: voice service error: %s", detail)
	c.status = internal_type.StatusErrored
	if c.session != nil {
		now := time.Now()
		c.session.Status = internal_type.StatusErrored
		c.session.EndedAt = &now
		c.session.EndReason = detail
	}

	// a non-empty transcript is still worth evaluating
	if c.rec != nil && c.rec.Len() > 0 {
		sess := *c.session
		rec := c.rec
		sub := c.submitter
		utils.Go(c.rootCtx, func(goCtx context.Context) {
			rec.FlushPartial()
			c.submitAndPersist(goCtx, sess, rec, sub, "error-normal")
			c.mu.Lock()
			c.status = internal_type.StatusInactive
			c.mu.Unlock()
		})
		return
	}
	c.status = internal_type.StatusInactive
}

// beginEndingLocked transitions to ENDING and launches finalization. The
// finalizer runs on the controller's root context, not the session's, so a
// manual stop cannot cut the stabilization wait or retry sequence short,
// both of which are bounded.
func (c *Controller) beginEndingLocked(reason string) {
	now := time.Now()
	c.status = internal_type.StatusEnding
	c.session.Status = internal_type.StatusEnding
	c.session.EndedAt = &now
	c.session.EndReason = reason
	c.logger.Infof("session: call %s ending (%s)", c.session.ID, reason)

	sess := *c.session
	rec := c.rec
	sub := c.submitter
	done := c.finished
	utils.Go(c.rootCtx, func(goCtx context.Context) {
		defer close(done)
		c.gate.WaitForStable(goCtx, rec)
		sess.Status = internal_type.StatusFinished
		c.submitAndPersist(goCtx, sess, rec, sub, reason)
		utils.Sleep(goCtx, c.settleDelay)

		c.mu.Lock()
		c.status = internal_type.StatusFinished
		if c.session != nil && c.session.ID == sess.ID {
			c.session.Status = internal_type.StatusFinished
		}
		c.mu.Unlock()
		c.logger.Infof("session: call %s finished", sess.ID)
	})
}

// submitAndPersist runs the feedback submission and records both the
// session and the submission outcome. Failures are logged, never raised;
// the caller's state transition proceeds either way.
func (c *Controller) submitAndPersist(ctx context.Context, sess internal_type.CallSession, rec *internal_reconciler.Reconciler, sub *internal_feedback.Submitter, reason string) {
	ended := time.Now()
	if sess.EndedAt != nil {
		ended = *sess.EndedAt
	}

	outcome, detail := "posted", ""
	err := sub.Submit(ctx, internal_feedback.SubmissionInput{
		InterviewID: sess.InterviewID,
		UserID:      sess.UserID,
		StartedAt:   sess.StartedAt,
		EndedAt:     ended,
		Reason:      reason,
		Snapshot:    rec.Snapshot,
	})
	switch {
	case err == nil:
	case errors.Is(err, internal_feedback.ErrInsufficientData):
		outcome, detail = "insufficient-data", err.Error()
		c.logger.Warnf("session: %v", err)
	case errors.Is(err, internal_feedback.ErrAlreadySubmitted):
		return
	default:
		outcome, detail = "failed", err.Error()
		c.logger.Errorf("session: feedback submission failed: %v", err)
	}

	if c.store == nil {
		return
	}
	if err := c.store.SaveSession(ctx, &sess, rec.Snapshot()); err != nil {
		c.logger.Errorf("session: persist failed: %v", err)
	}
	if err := c.store.RecordSubmission(ctx, sess.ID, sess.InterviewID, outcome, detail); err != nil {
		c.logger.Errorf("session: submission record failed: %v", err)
	}
}

// teardownLocked releases the previous session's reconciler and timers.
func (c *Controller) teardownLocked() {
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	if c.rec != nil {
		c.rec.Close()
		c.rec = nil
	}
	c.submitter = nil
	c.session = nil
}

// WaitFinished blocks until the current finalization completes, for callers
// that need the terminal state (tests, graceful shutdown).
func (c *Controller) WaitFinished(ctx context.Context) error {
	c.mu.Lock()
	done := c.finished
	c.mu.Unlock()
	if done == nil {
		return ErrNoSession
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isNormalEnd(detail string) bool {
	d := strings.ToLower(detail)
	for _, marker := range normalEndMarkers {
		if strings.Contains(d, marker) {
			return true
		}
	}
	return false
}
