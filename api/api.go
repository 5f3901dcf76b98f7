/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neoproj/robo32"
	"github.com/neoproj/robo32/api/middleware"
	"github.com/neoproj/robo32/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// maxUploadMemory bounds the part of a multipart upload kept in memory.
const maxUploadMemory = 32 << 20

type Api struct {
	robo32 *robo32.Robo32
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/jobs", a.SubmitJob)
	router.GET("/jobs/active", a.GetActiveJob)
	router.GET("/jobs/:id/summary", a.GetJobSummary)
	router.GET("/jobs/:id/errors", a.GetJobErrors)
	router.POST("/jobs/:id/cancel", a.CancelJob)

	router.POST("/classifications/validate", a.ValidateClassification)

	router.GET("/metrics", gin.WrapH(a.robo32.Metrics().Handler()))
	return a.router
}

func NewAPI(r *robo32.Robo32) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = maxUploadMemory
	if conf.EnableTelemetry {
		router.Use(otelgin.Middleware(conf.ProjectName))
	}
	router.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		router.Use(middleware.SecretKeyAuthMiddleware())
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{robo32: r, router: router}
}
