// Package api exposes the tracking store over HTTP.
package api

import (
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "go-cube-export/internal/api/docs"
	"go-cube-export/internal/api/handler"
	"go-cube-export/internal/store"
	"go-cube-export/pkg/router"
)

// NewRouter builds the status API router.
func NewRouter(s store.StatusReader, logger *zap.Logger) *router.Router {
	r := router.New(logger)
	RegisterRoutes(r, handler.NewStatusHandler(s, logger))
	return r
}

func RegisterRoutes(r *router.Router, h *handler.StatusHandler) {
	r.GET("/api/v1/processes", h.ListProcesses)
	r.GET("/api/v1/processes/*/progress", h.GetProcessProgress)
	r.POST("/api/v1/processes/*/enable", h.EnableProcess)
	r.POST("/api/v1/processes/*/disable", h.DisableProcess)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	)))
}
