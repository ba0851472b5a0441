package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danielolaszy/bridge/pkg/models"
)

// settingsRequest is the payload for saving or probing tracker settings.
type settingsRequest struct {
	CloudURL            string `json:"cloud_url" binding:"required"`
	CloudEmail          string `json:"cloud_email" binding:"required"`
	CloudAPIToken       string `json:"cloud_api_token" binding:"required"`
	OnPremURL           string `json:"onprem_url" binding:"required"`
	OnPremUsername      string `json:"onprem_username" binding:"required"`
	OnPremPassword      string `json:"onprem_password" binding:"required"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

func (r settingsRequest) toModel() *models.JiraSettings {
	interval := r.SyncIntervalMinutes
	if interval <= 0 {
		interval = 15
	}
	return &models.JiraSettings{
		CloudURL:            r.CloudURL,
		CloudEmail:          r.CloudEmail,
		CloudAPIToken:       r.CloudAPIToken,
		OnPremURL:           r.OnPremURL,
		OnPremUsername:      r.OnPremUsername,
		OnPremPassword:      r.OnPremPassword,
		SyncIntervalMinutes: interval,
	}
}

// projectMappingRequest is the payload for creating a project mapping.
type projectMappingRequest struct {
	CloudProjectKey   string     `json:"cloud_project_key" binding:"required"`
	CloudProjectName  string     `json:"cloud_project_name"`
	OnPremProjectKey  string     `json:"onprem_project_key" binding:"required"`
	OnPremProjectName string     `json:"onprem_project_name"`
	StartDate         *time.Time `json:"start_date"`
}

// issueTypeMappingRequest is the payload for creating an issue type mapping.
type issueTypeMappingRequest struct {
	ProjectMappingID string `json:"project_mapping_id" binding:"required"`
	CloudIssueType   string `json:"cloud_issue_type" binding:"required"`
	OnPremIssueType  string `json:"onprem_issue_type" binding:"required"`
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.store.GetSettings()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) saveSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	settings := req.toModel()
	if err := s.store.SaveSettings(settings); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// testConnections probes both trackers. With a request body it probes
// the supplied, possibly unsaved settings; without one it probes the
// stored settings and records the outcome on them.
func (s *Server) testConnections(c *gin.Context) {
	if c.Request.ContentLength > 0 {
		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.engine.TestConnections(req.toModel()))
		return
	}

	settings, err := s.store.GetSettings()
	if err != nil {
		s.fail(c, err)
		return
	}

	result := s.engine.TestConnections(settings)
	if err := s.store.SetConnected(result.CloudOK && result.OnPremOK); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listCloudProjects(c *gin.Context) {
	s.listProjects(c, models.SideCloud)
}

func (s *Server) listOnPremProjects(c *gin.Context) {
	s.listProjects(c, models.SideOnPrem)
}

func (s *Server) listProjects(c *gin.Context, side models.TrackerSide) {
	client, err := s.engine.TrackerFor(side)
	if err != nil {
		s.fail(c, err)
		return
	}
	projects, err := client.ListProjects()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) listCloudIssueTypes(c *gin.Context) {
	s.listIssueTypes(c, models.SideCloud)
}

func (s *Server) listOnPremIssueTypes(c *gin.Context) {
	s.listIssueTypes(c, models.SideOnPrem)
}

func (s *Server) listIssueTypes(c *gin.Context, side models.TrackerSide) {
	client, err := s.engine.TrackerFor(side)
	if err != nil {
		s.fail(c, err)
		return
	}
	types, err := client.ListIssueTypes()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (s *Server) listProjectMappings(c *gin.Context) {
	mappings, err := s.store.ListProjectMappings()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (s *Server) createProjectMapping(c *gin.Context) {
	var req projectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	mapping := &models.ProjectMapping{
		CloudProjectKey:   req.CloudProjectKey,
		CloudProjectName:  req.CloudProjectName,
		OnPremProjectKey:  req.OnPremProjectKey,
		OnPremProjectName: req.OnPremProjectName,
		IsActive:          true,
		StartDate:         req.StartDate,
	}
	if err := s.store.CreateProjectMapping(mapping); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

func (s *Server) deleteProjectMapping(c *gin.Context) {
	if err := s.store.DeleteProjectMapping(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mapping deleted"})
}

func (s *Server) toggleProjectMapping(c *gin.Context) {
	active, err := s.store.ToggleProjectMapping(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_active": active})
}

// listIssueTypeMappings returns the project-scoped view when
// project_mapping_id is given, and the legacy flattened view otherwise.
func (s *Server) listIssueTypeMappings(c *gin.Context) {
	mappings, err := s.store.ListIssueTypeMappings(c.Query("project_mapping_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (s *Server) createIssueTypeMapping(c *gin.Context) {
	var req issueTypeMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	mapping := &models.IssueTypeMapping{
		ProjectMappingID: req.ProjectMappingID,
		CloudIssueType:   req.CloudIssueType,
		OnPremIssueType:  req.OnPremIssueType,
	}
	if err := s.store.CreateIssueTypeMapping(mapping); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

func (s *Server) deleteIssueTypeMapping(c *gin.Context) {
	if err := s.store.DeleteIssueTypeMapping(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mapping deleted"})
}

// triggerSync starts a run in the background. The response acknowledges
// acceptance, never completion; a trigger during an active run is a
// no-op.
func (s *Server) triggerSync(c *gin.Context) {
	if s.engine.TriggerSync() {
		c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync already running"})
}

func (s *Server) syncStatus(c *gin.Context) {
	running, lastRun := s.engine.Status()
	if lastRun == nil {
		if settings, err := s.store.GetSettings(); err == nil {
			lastRun = settings.LastSyncAt
		}
	}
	c.JSON(http.StatusOK, gin.H{"running": running, "last_sync_at": lastRun})
}

func (s *Server) listLogs(c *gin.Context) {
	status := models.TransferStatus(c.Query("status"))
	switch status {
	case "", models.StatusPending, models.StatusSuccess, models.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", status)})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	logs, err := s.store.ListTransferLogs(status, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) logStats(c *gin.Context) {
	stats, err := s.store.CountTransferLogs()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) retryLog(c *gin.Context) {
	log, err := s.engine.Retry(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Server) retryAll(c *gin.Context) {
	count, err := s.engine.RetryAll()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("retried %d failed transfers", count),
		"count":   count,
	})
}

// dashboardStats recomputes the aggregate from current store state on
// every call; nothing here is cached.
func (s *Server) dashboardStats(c *gin.Context) {
	total, active, err := s.store.CountProjectMappings()
	if err != nil {
		s.fail(c, err)
		return
	}
	logStats, err := s.store.CountTransferLogs()
	if err != nil {
		s.fail(c, err)
		return
	}

	stats := models.DashboardStats{
		TotalMappings:  total,
		ActiveMappings: active,
		TotalSynced:    logStats.Success,
		TotalErrors:    logStats.Failed,
		TotalPending:   logStats.Pending,
	}

	if settings, err := s.store.GetSettings(); err == nil {
		stats.IsConnected = settings.IsConnected
		stats.LastSync = settings.LastSyncAt
	}
	if stats.LastSync == nil {
		if last, err := s.store.LastTransferAt(); err == nil {
			stats.LastSync = last
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) recentLogs(c *gin.Context) {
	logs, err := s.store.ListTransferLogs("", 10)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
