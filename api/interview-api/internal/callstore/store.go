// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_callstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/pkg/commons"
)

// SessionRecord is the persisted row for a finished (or errored) call
// session, transcript included.
type SessionRecord struct {
	ID          string `gorm:"primaryKey"`
	InterviewID string `gorm:"index"`
	UserID      string `gorm:"index"`
	Status      string
	EndReason   string
	Transcript  string `gorm:"type:text"`
	StartedAt   time.Time
	EndedAt     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SessionRecord) TableName() string { return "call_sessions" }

// SubmissionRecord tracks the outcome of each feedback submission so a
// session can never be double-submitted across process restarts.
type SubmissionRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"uniqueIndex"`
	InterviewID string `gorm:"index"`
	Outcome     string
	Detail      string
	CreatedAt   time.Time
}

func (SubmissionRecord) TableName() string { return "feedback_submissions" }

// Store persists call sessions and feedback submission outcomes.
type Store struct {
	logger commons.Logger
	db     *gorm.DB
}

// NewStore opens (or creates) the sqlite database at path and migrates the
// schema.
func NewStore(logger commons.Logger, path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("callstore: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&SessionRecord{}, &SubmissionRecord{}); err != nil {
		return nil, fmt.Errorf("callstore: migrate: %w", err)
	}
	return &Store{logger: logger, db: db}, nil
}

// SaveSession upserts the session row with its transcript serialized as
// JSON.
func (s *Store) SaveSession(ctx context.Context, sess *internal_type.CallSession, transcript []internal_type.TranscriptMessage) error {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("callstore: encode transcript: %w", err)
	}

	record := SessionRecord{
		ID:          sess.ID,
		InterviewID: sess.InterviewID,
		UserID:      sess.UserID,
		Status:      string(sess.Status),
		EndReason:   sess.EndReason,
		Transcript:  string(raw),
		StartedAt:   sess.StartedAt,
		EndedAt:     sess.EndedAt,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("callstore: save session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads a persisted session and its transcript.
func (s *Store) GetSession(ctx context.Context, id string) (*internal_type.CallSession, []internal_type.TranscriptMessage, error) {
	var record SessionRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, nil, fmt.Errorf("callstore: load session %s: %w", id, err)
	}

	var transcript []internal_type.TranscriptMessage
	if record.Transcript != "" {
		if err := json.Unmarshal([]byte(record.Transcript), &transcript); err != nil {
			return nil, nil, fmt.Errorf("callstore: decode transcript for %s: %w", id, err)
		}
	}

	sess := &internal_type.CallSession{
		ID:          record.ID,
		InterviewID: record.InterviewID,
		UserID:      record.UserID,
		Status:      internal_type.CallStatus(record.Status),
		EndReason:   record.EndReason,
		StartedAt:   record.StartedAt,
		EndedAt:     record.EndedAt,
	}
	return sess, transcript, nil
}

// RecordSubmission writes the feedback submission outcome for a session.
// The unique index on session id makes a duplicate write fail loudly.
func (s *Store) RecordSubmission(ctx context.Context, sessionID, interviewID, outcome, detail string) error {
	record := SubmissionRecord{
		SessionID:   sessionID,
		InterviewID: interviewID,
		Outcome:     outcome,
		Detail:      detail,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("callstore: record submission for %s: %w", sessionID, err)
	}
	return nil
}

// HasSubmission reports whether a submission outcome exists for the session.
func (s *Store) HasSubmission(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&SubmissionRecord{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("callstore: lookup submission for %s: %w", sessionID, err)
	}
	return count > 0, nil
}
