// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_feedback

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

const (
	defaultAttempts       = 3
	defaultRereadWait     = time.Second
	defaultThrottleWait   = 11 * time.Second
	throttleWaitMargin    = time.Second
	minTranscriptMessages = 2
)

// retryAfterPattern matches the wait hint the feedback service embeds in its
// throttle responses, e.g. "rate limited, retry in 7s".
var retryAfterPattern = regexp.MustCompile(`retry in (\d+)s`)

// ErrInsufficientData indicates the transcript never reached the minimum
// size for a meaningful evaluation, even after the grace re-read.
var ErrInsufficientData = errors.New("feedback: transcript too short for evaluation")

// ErrAlreadySubmitted indicates feedback for this session was already posted
// or is being posted right now.
var ErrAlreadySubmitted = errors.New("feedback: submission already performed")

// ValidationError reports a payload that failed local validation before any
// network call was made.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feedback: invalid payload: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// TransportError reports a failed exchange with the feedback service.
// Status is zero when no response was received at all.
type TransportError struct {
	Status int
	Body   string
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("feedback: request failed: %v", e.Cause)
	}
	return fmt.Sprintf("feedback: service returned %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// SubmissionInput carries everything the submitter needs to build and post
// one feedback payload. Snapshot is re-invoked for the grace re-read, so it
// must reflect the live transcript.
type SubmissionInput struct {
	InterviewID string
	UserID      string
	StartedAt   time.Time
	EndedAt     time.Time
	Reason      string
	Snapshot    func() []internal_type.TranscriptMessage
}

type transcriptEntry struct {
	Role      string    `json:"role" validate:"required,oneof=assistant user"`
	Content   string    `json:"content" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	IsAnswer  bool      `json:"isAnswer"`
}

type interviewMetadata struct {
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Reason    string    `json:"reason,omitempty"`
}

type feedbackPayload struct {
	InterviewID       string            `json:"interviewId" validate:"required"`
	UserID            string            `json:"userId" validate:"required"`
	Transcript        []transcriptEntry `json:"transcript" validate:"min=2,dive"`
	Duration          int64             `json:"duration" validate:"gte=0"`
	TotalQuestions    int               `json:"totalQuestions"`
	TotalAnswers      int               `json:"totalAnswers"`
	InterviewMetadata interviewMetadata `json:"interviewMetadata"`
}

// Submitter posts the finished transcript to the feedback service exactly
// once per session. Concurrent callers beyond the first get
// ErrAlreadySubmitted.
type Submitter struct {
	logger   commons.Logger
	client   *resty.Client
	validate *validator.Validate

	attempts     int
	rereadWait   time.Duration
	throttleWait time.Duration

	inFlight atomic.Bool
	posted   atomic.Bool
}

// NewSubmitter builds a submitter against the feedback service base URL.
// Recognized options: "feedback.attempts", "feedback.reread.ms",
// "feedback.throttle.fallback.ms".
func NewSubmitter(logger commons.Logger, baseURL, authToken string, opts utils.Option) *Submitter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	if authToken != "" {
		client.SetAuthToken(authToken)
	}

	attempts := defaultAttempts
	if v, err := opts.GetUint64("feedback.attempts"); err == nil && v > 0 {
		attempts = int(v)
	}

	return &Submitter{
		logger:       logger,
		client:       client,
		validate:     validator.New(),
		attempts:     attempts,
		rereadWait:   opts.GetDuration("feedback.reread.ms", defaultRereadWait),
		throttleWait: opts.GetDuration("feedback.throttle.fallback.ms", defaultThrottleWait),
	}
}

// Posted reports whether a submission has succeeded.
func (s *Submitter) Posted() bool { return s.posted.Load() }

// Submit builds the feedback payload from the transcript snapshot and posts
// it. When the transcript is too short it waits once for stragglers and
// re-reads before giving up with ErrInsufficientData.
func (s *Submitter) Submit(ctx context.Context, in SubmissionInput) error {
	if s.posted.Load() {
		return ErrAlreadySubmitted
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrAlreadySubmitted
	}
	defer s.inFlight.Store(false)

	msgs := in.Snapshot()
	if len(msgs) < minTranscriptMessages {
		s.logger.Infof("feedback: transcript has %d messages, waiting for stragglers", len(msgs))
		if !utils.Sleep(ctx, s.rereadWait) {
			return ctx.Err()
		}
		msgs = in.Snapshot()
		if len(msgs) < minTranscriptMessages {
			return ErrInsufficientData
		}
	}

	payload := s.buildPayload(in, msgs)
	if err := s.validate.Struct(payload); err != nil {
		return &ValidationError{Cause: err}
	}

	if err := s.post(ctx, payload); err != nil {
		return err
	}
	s.posted.Store(true)
	s.logger.Infof("feedback: submitted %d messages for interview %s", len(msgs), in.InterviewID)
	return nil
}

func (s *Submitter) buildPayload(in SubmissionInput, msgs []internal_type.TranscriptMessage) feedbackPayload {
	entries := make([]transcriptEntry, 0, len(msgs))
	questions, answers := 0, 0
	for _, m := range msgs {
		entries = append(entries, transcriptEntry{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			IsAnswer:  m.IsAnswer,
		})
		switch m.Role {
		case internal_type.RoleAssistant:
			questions++
		case internal_type.RoleUser:
			answers++
		}
	}

	ended := in.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	duration := int64(0)
	if !in.StartedAt.IsZero() {
		duration = int64(ended.Sub(in.StartedAt).Seconds())
	}

	return feedbackPayload{
		InterviewID:    in.InterviewID,
		UserID:         in.UserID,
		Transcript:     entries,
		Duration:       duration,
		TotalQuestions: questions,
		TotalAnswers:   answers,
		InterviewMetadata: interviewMetadata{
			StartedAt: in.StartedAt,
			EndedAt:   ended,
			Reason:    in.Reason,
		},
	}
}

// post performs the HTTP exchange. Throttle responses are retried with the
// service's wait hint plus a margin; any other failure is terminal. The
// throttle check runs before the success check because the service has been
// seen answering 2xx with a "throttled" body and no feedback generated.
func (s *Submitter) post(ctx context.Context, payload feedbackPayload) error {
	for attempt := 1; ; attempt++ {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(fmt.Sprintf("/api/interviews/%s/feedback", payload.InterviewID))
		if err != nil {
			return &TransportError{Cause: err}
		}

		body := string(resp.Body())
		if !isThrottled(resp.StatusCode(), body) {
			if resp.IsSuccess() {
				return nil
			}
			return &TransportError{Status: resp.StatusCode(), Body: body}
		}
		if attempt >= s.attempts {
			s.logger.Errorf("feedback: still throttled after %d attempts", attempt)
			return &TransportError{Status: resp.StatusCode(), Body: body}
		}

		wait := s.throttleDelay(body)
		s.logger.Warnf("feedback: throttled (attempt %d/%d), retrying in %s", attempt, s.attempts, wait)
		if !utils.Sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// isThrottled recognizes the service's rate-limit signal: HTTP 429, or a
// "throttled" body on a 2xx/4xx response. A 5xx is a server failure even
// when its body happens to contain the word.
func isThrottled(status int, body string) bool {
	if status == 429 {
		return true
	}
	success := status >= 200 && status < 300
	clientErr := status >= 400 && status < 500
	if !success && !clientErr {
		return false
	}
	return strings.Contains(strings.ToLower(body), "throttled")
}

// throttleDelay extracts the wait hint from the response body, falling back
// to a conservative default, and pads it so the retry lands past the window.
func (s *Submitter) throttleDelay(body string) time.Duration {
	wait := s.throttleWait
	if m := retryAfterPattern.FindStringSubmatch(body); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			wait = time.Duration(n) * time.Second
		}
	}
	return wait + throttleWaitMargin
}
