// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package interview_routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preporbit/voice-api/config"
	"github.com/preporbit/voice-api/pkg/commons"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger) {
	logger.Infof("health check routes added to engine")
	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		apiv1.GET("/readiness", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		})
	}
}
