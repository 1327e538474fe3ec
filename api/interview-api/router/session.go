// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package interview_routers

import (
	"context"

	"github.com/gin-gonic/gin"

	internal_callstore "github.com/preporbit/voice-api/api/interview-api/internal/callstore"
	internal_session "github.com/preporbit/voice-api/api/interview-api/internal/session"
	sessionApi "github.com/preporbit/voice-api/api/interview-api/session"
	"github.com/preporbit/voice-api/config"
	"github.com/preporbit/voice-api/pkg/commons"
)

func LiveSessionApiRoute(
	ctx context.Context,
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	controller *internal_session.Controller,
	store *internal_callstore.Store,
) {
	apiv1 := engine.Group("v1/live-sessions")
	api := sessionApi.NewSessionApi(ctx, cfg, logger, controller, store)
	{
		apiv1.POST("/:interviewId/start", api.Start)
		apiv1.POST("/:interviewId/stop", api.Stop)
		apiv1.POST("/:interviewId/events", api.Ingest)
		apiv1.GET("/:interviewId", api.State)
	}
	engine.GET("v1/sessions/:sessionId", api.History)
}
