// Package server exposes the bridge's REST API: mapping CRUD, sync
// trigger and status, transfer log queries, retries, and dashboard
// aggregates.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danielolaszy/bridge/internal/engine"
	"github.com/danielolaszy/bridge/internal/jira"
	"github.com/danielolaszy/bridge/internal/store"
)

// Server wires the store and engine behind the HTTP API.
type Server struct {
	store  store.Store
	engine *engine.Engine
}

// New creates a Server.
func New(st store.Store, eng *engine.Engine) *Server {
	return &Server{store: st, engine: eng}
}

// Router builds the gin router with all API routes under /api.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")

	api.GET("/settings/jira", s.getSettings)
	api.POST("/settings/jira", s.saveSettings)
	api.POST("/settings/jira/test", s.testConnections)

	api.GET("/projects/cloud", s.listCloudProjects)
	api.GET("/projects/onprem", s.listOnPremProjects)
	api.GET("/projects/mappings", s.listProjectMappings)
	api.POST("/projects/mappings", s.createProjectMapping)
	api.DELETE("/projects/mappings/:id", s.deleteProjectMapping)
	api.PATCH("/projects/mappings/:id/toggle", s.toggleProjectMapping)

	api.GET("/issuetypes/cloud", s.listCloudIssueTypes)
	api.GET("/issuetypes/onprem", s.listOnPremIssueTypes)
	api.GET("/issuetypes/mappings", s.listIssueTypeMappings)
	api.POST("/issuetypes/mappings", s.createIssueTypeMapping)
	api.DELETE("/issuetypes/mappings/:id", s.deleteIssueTypeMapping)

	api.POST("/sync/trigger", s.triggerSync)
	api.GET("/sync/status", s.syncStatus)

	api.GET("/logs", s.listLogs)
	api.GET("/logs/stats", s.logStats)
	api.POST("/logs/:id/retry", s.retryLog)
	api.POST("/logs/retry-all", s.retryAll)

	api.GET("/dashboard/stats", s.dashboardStats)
	api.GET("/dashboard/recent-logs", s.recentLogs)

	return router
}

// fail renders an error with the HTTP status its taxonomy maps to.
func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

// errStatus maps the error taxonomy onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrDuplicateMapping),
		errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrUnknownProjectMapping):
		return http.StatusNotFound
	case errors.Is(err, jira.ErrUpstreamUnavailable),
		errors.Is(err, jira.ErrAuthFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
