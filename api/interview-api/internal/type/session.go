// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_type

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a voice interview session.
type CallStatus string

const (
	StatusInactive   CallStatus = "INACTIVE"
	StatusConnecting CallStatus = "CONNECTING"
	StatusActive     CallStatus = "ACTIVE"
	StatusEnding     CallStatus = "ENDING"
	StatusFinished   CallStatus = "FINISHED"
	StatusErrored    CallStatus = "ERRORED"
)

// TranscriptMessage is one committed line of the conversation. Once appended
// with IsPartial=false it is never mutated.
type TranscriptMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsPartial bool      `json:"isPartial,omitempty"`

	// IsAnswer marks substantive user responses, mirroring what the feedback
	// backend expects (user role, content longer than a throwaway ack).
	IsAnswer bool `json:"isAnswer"`
}

// CallSession is the single live session record. It is owned exclusively by
// the lifecycle controller; other components receive it read-only.
type CallSession struct {
	ID          string
	InterviewID string
	UserID      string
	Status      CallStatus
	StartedAt   time.Time
	EndedAt     *time.Time
	EndReason   string
}

// NewCallSession creates an ACTIVE session for the given interview. Called
// on the voice service's call-start event.
func NewCallSession(interviewID, userID string, now time.Time) *CallSession {
	return &CallSession{
		ID:          uuid.New().String(),
		InterviewID: interviewID,
		UserID:      userID,
		Status:      StatusActive,
		StartedAt:   now,
	}
}

// DurationSeconds derives the call length. A still-open session measures up
// to now.
func (s *CallSession) DurationSeconds(now time.Time) int {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	d := end.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
