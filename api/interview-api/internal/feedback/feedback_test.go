// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_feedback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

func sampleTranscript() []internal_type.TranscriptMessage {
	now := time.Now()
	return []internal_type.TranscriptMessage{
		{Role: internal_type.RoleAssistant, Content: "Tell me about your last project.", Timestamp: now},
		{Role: internal_type.RoleUser, Content: "I built a streaming ingestion pipeline.", Timestamp: now, IsAnswer: true},
	}
}

func sampleInput(msgs []internal_type.TranscriptMessage) SubmissionInput {
	return SubmissionInput{
		InterviewID: "iv-123",
		UserID:      "user-9",
		StartedAt:   time.Now().Add(-90 * time.Second),
		EndedAt:     time.Now(),
		Reason:      "call-ended",
		Snapshot:    func() []internal_type.TranscriptMessage { return msgs },
	}
}

func newTestSubmitter(url string, opts utils.Option) *Submitter {
	return NewSubmitter(commons.NewApplicationLogger(), url, "test-token", opts)
}

func TestSubmitPostsPayload(t *testing.T) {
	var got feedbackPayload
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, nil)
	err := s.Submit(context.Background(), sampleInput(sampleTranscript()))
	require.NoError(t, err)

	assert.Equal(t, "/api/interviews/iv-123/feedback", path)
	assert.Equal(t, "iv-123", got.InterviewID)
	assert.Equal(t, "user-9", got.UserID)
	assert.Len(t, got.Transcript, 2)
	assert.Equal(t, 1, got.TotalQuestions)
	assert.Equal(t, 1, got.TotalAnswers)
	assert.True(t, got.Transcript[1].IsAnswer)
	assert.GreaterOrEqual(t, got.Duration, int64(89))
	assert.Equal(t, "call-ended", got.InterviewMetadata.Reason)
	assert.True(t, s.Posted())
}

func TestSubmitAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, nil)
	in := sampleInput(sampleTranscript())

	require.NoError(t, s.Submit(context.Background(), in))
	err := s.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitRereadRescuesShortTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	full := sampleTranscript()
	var reads atomic.Int32
	in := sampleInput(nil)
	in.Snapshot = func() []internal_type.TranscriptMessage {
		if reads.Add(1) == 1 {
			return full[:1]
		}
		return full
	}

	s := newTestSubmitter(srv.URL, utils.Option{"feedback.reread.ms": 20})
	require.NoError(t, s.Submit(context.Background(), in))
	assert.Equal(t, int32(2), reads.Load())
}

func TestSubmitInsufficientData(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	in := sampleInput(sampleTranscript()[:1])
	s := newTestSubmitter(srv.URL, utils.Option{"feedback.reread.ms": 20})

	err := s.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, s.Posted())

	// an insufficient attempt must not consume the at-most-once flag
	in.Snapshot = func() []internal_type.TranscriptMessage { return sampleTranscript() }
	require.NoError(t, s.Submit(context.Background(), in))
}

func TestSubmitValidationFailsLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	in := sampleInput(sampleTranscript())
	in.InterviewID = ""

	s := newTestSubmitter(srv.URL, nil)
	err := s.Submit(context.Background(), in)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSubmitRetriesOnThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, utils.Option{"feedback.throttle.fallback.ms": 10})
	require.NoError(t, s.Submit(context.Background(), sampleInput(sampleTranscript())))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmitRetriesOnThrottledSuccessBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// the service sometimes rate limits behind a 200
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("throttled. retry in 0s"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, nil)
	require.NoError(t, s.Submit(context.Background(), sampleInput(sampleTranscript())))
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, s.Posted())
}

func TestSubmitSucceedsOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, utils.Option{"feedback.throttle.fallback.ms": 10})
	require.NoError(t, s.Submit(context.Background(), sampleInput(sampleTranscript())))
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, s.Posted())
}

func TestSubmitGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("throttled"))
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, utils.Option{
		"feedback.attempts":             2,
		"feedback.throttle.fallback.ms": 10,
	})
	err := s.Submit(context.Background(), sampleInput(sampleTranscript()))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusTooManyRequests, terr.Status)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, s.Posted())
}

func TestSubmitServerErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, nil)
	err := s.Submit(context.Background(), sampleInput(sampleTranscript()))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestThrottleDelayParsesHint(t *testing.T) {
	s := newTestSubmitter("http://localhost", nil)

	assert.Equal(t, 8*time.Second, s.throttleDelay("rate limited, retry in 7s"))
	assert.Equal(t, defaultThrottleWait+time.Second, s.throttleDelay("throttled"))
}

func TestIsThrottled(t *testing.T) {
	assert.True(t, isThrottled(429, ""))
	assert.True(t, isThrottled(200, "request THROTTLED upstream"))
	assert.True(t, isThrottled(400, "throttled, slow down"))
	assert.False(t, isThrottled(200, "ok"))
	assert.False(t, isThrottled(500, "internal error"))
	// a 5xx is a server failure even with the marker in the body
	assert.False(t, isThrottled(503, "request throttled upstream"))
}

func TestSubmitCancelledDuringThrottleWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestSubmitter(srv.URL, utils.Option{"feedback.throttle.fallback.ms": 5000})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Submit(ctx, sampleInput(sampleTranscript()))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
