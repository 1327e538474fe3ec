// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package interview_session_api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	internal_callstore "github.com/preporbit/voice-api/api/interview-api/internal/callstore"
	internal_session "github.com/preporbit/voice-api/api/interview-api/internal/session"
	internal_stream "github.com/preporbit/voice-api/api/interview-api/internal/stream"
	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/config"
	generator_client "github.com/preporbit/voice-api/pkg/clients/generator"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

// SessionApi exposes the live interview session over HTTP. One live session
// exists per process; the controller rejects overlapping starts.
type SessionApi struct {
	cfg        *config.AppConfig
	logger     commons.Logger
	controller *internal_session.Controller
	store      *internal_callstore.Store
	rootCtx    context.Context

	mu           sync.Mutex
	streamCancel context.CancelFunc
}

func NewSessionApi(
	ctx context.Context,
	cfg *config.AppConfig,
	logger commons.Logger,
	controller *internal_session.Controller,
	store *internal_callstore.Store,
) *SessionApi {
	return &SessionApi{
		cfg:        cfg,
		logger:     logger,
		controller: controller,
		store:      store,
		rootCtx:    ctx,
	}
}

type startRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	Role      string   `json:"role"`
	Level     string   `json:"level"`
	Type      string   `json:"type"`
	TechStack []string `json:"techStack"`
	Amount    int      `json:"amount"`
}

// Start begins a session for the interview and, when a voice stream URL is
// configured, opens the event ingress.
func (api *SessionApi) Start(c *gin.Context) {
	interviewID := c.Param("interviewId")

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gen := &generator_client.GenerateRequest{
		Role:      req.Role,
		Level:     req.Level,
		Type:      req.Type,
		TechStack: req.TechStack,
		Amount:    req.Amount,
		UserID:    req.UserID,
	}
	if err := api.controller.Start(c.Request.Context(), interviewID, req.UserID, gen); err != nil {
		if errors.Is(err, internal_session.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if api.cfg.VoiceStreamURL != "" {
		api.openStream(interviewID)
	}

	c.JSON(http.StatusAccepted, gin.H{"status": api.controller.Status()})
}

// Stop ends the live session and kicks off finalization.
func (api *SessionApi) Stop(c *gin.Context) {
	if err := api.controller.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	api.closeStream()
	c.JSON(http.StatusOK, gin.H{"status": api.controller.Status()})
}

// Ingest accepts a pushed voice-service event, for providers that deliver
// webhooks instead of (or alongside) a socket stream.
func (api *SessionApi) Ingest(c *gin.Context) {
	var raw interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	api.controller.HandleEvent(internal_type.ParseEvent(raw, time.Now()))
	c.JSON(http.StatusAccepted, gin.H{"status": api.controller.Status()})
}

// State returns the live session record and transcript.
func (api *SessionApi) State(c *gin.Context) {
	sess, transcript, err := api.controller.Snapshot()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"status": api.controller.Status(),
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": gin.H{
			"id":          sess.ID,
			"interviewId": sess.InterviewID,
			"userId":      sess.UserID,
			"status":      sess.Status,
			"startedAt":   sess.StartedAt,
			"endedAt":     sess.EndedAt,
			"endReason":   sess.EndReason,
			"duration":    sess.DurationSeconds(time.Now()),
		},
		"transcript": transcript,
	})
}

// History returns a persisted session by id.
func (api *SessionApi) History(c *gin.Context) {
	if api.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence disabled"})
		return
	}
	sess, transcript, err := api.store.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "transcript": transcript})
}

func (api *SessionApi) openStream(interviewID string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if api.streamCancel != nil {
		api.streamCancel()
	}
	ctx, cancel := context.WithCancel(api.rootCtx)
	api.streamCancel = cancel

	stream := internal_stream.NewStream(api.logger, api.cfg.VoiceStreamURL, api.controller.HandleEvent)
	utils.Go(ctx, func(goCtx context.Context) {
		if err := stream.Run(goCtx, interviewID); err != nil {
			api.logger.Errorf("session api: stream ended with error: %v", err)
		}
	})
}

func (api *SessionApi) closeStream() {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.streamCancel != nil {
		api.streamCancel()
		api.streamCancel = nil
	}
}
