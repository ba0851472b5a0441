// Package models defines data structures shared across the application.
package models

import (
	"time"
)

// TrackerSide identifies which of the two Jira instances an operation
// or error refers to.
type TrackerSide string

const (
	// SideCloud is the Jira Cloud instance issues are read from.
	SideCloud TrackerSide = "cloud"

	// SideOnPrem is the on-premise Jira instance issues are created in.
	SideOnPrem TrackerSide = "onprem"
)

// TransferStatus is the lifecycle state of a single issue transfer.
type TransferStatus string

const (
	// StatusPending means the transfer has been recorded but not yet resolved.
	StatusPending TransferStatus = "pending"

	// StatusSuccess means the on-premise issue was created.
	StatusSuccess TransferStatus = "success"

	// StatusFailed means the last attempt errored; the row is eligible for retry.
	StatusFailed TransferStatus = "failed"
)

// ProjectMapping associates one cloud project with one on-premise
// project. A cloud project key may have at most one active mapping.
type ProjectMapping struct {
	ID                string     `gorm:"type:char(36);primaryKey" json:"id"`
	CloudProjectKey   string     `gorm:"size:64;index" json:"cloud_project_key"`
	CloudProjectName  string     `gorm:"size:255" json:"cloud_project_name"`
	OnPremProjectKey  string     `gorm:"size:64" json:"onprem_project_key"`
	OnPremProjectName string     `gorm:"size:255" json:"onprem_project_name"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IssueTypeMapping translates one cloud issue type name to its
// on-premise equivalent within a single project mapping. The same cloud
// type name may map differently under different project mappings.
type IssueTypeMapping struct {
	ID               string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectMappingID string    `gorm:"type:char(36);uniqueIndex:idx_type_per_mapping" json:"project_mapping_id"`
	CloudIssueType   string    `gorm:"size:128;uniqueIndex:idx_type_per_mapping" json:"cloud_issue_type"`
	OnPremIssueType  string    `gorm:"size:128" json:"onprem_issue_type"`
	CreatedAt        time.Time `json:"created_at"`
}

// TransferLog is the audit record of one cloud issue's transfer.
// Exactly one row exists per (project_mapping_id, cloud_issue_key);
// retries mutate the row rather than appending a duplicate. Rows
// survive deletion of their project mapping.
type TransferLog struct {
	ID                string         `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectMappingID  string         `gorm:"type:char(36);uniqueIndex:idx_log_per_issue" json:"project_mapping_id"`
	CloudIssueKey     string         `gorm:"size:64;uniqueIndex:idx_log_per_issue" json:"cloud_issue_key"`
	CloudIssueSummary string         `gorm:"size:512" json:"cloud_issue_summary"`
	OnPremIssueKey    *string        `gorm:"size:64" json:"onprem_issue_key"`
	Status            TransferStatus `gorm:"size:16;index" json:"status"`
	ErrorMessage      *string        `gorm:"size:2048" json:"error_message"`
	Attempts          int            `json:"attempts"`
	LastAttemptAt     *time.Time     `json:"last_attempt_at"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at"`
}

// JiraSettings holds the connection configuration for both trackers.
// A single row is kept; saving replaces it.
type JiraSettings struct {
	ID                  string     `gorm:"type:char(36);primaryKey" json:"id"`
	CloudURL            string     `gorm:"size:255" json:"cloud_url"`
	CloudEmail          string     `gorm:"size:255" json:"cloud_email"`
	CloudAPIToken       string     `gorm:"size:512" json:"-"`
	OnPremURL           string     `gorm:"size:255" json:"onprem_url"`
	OnPremUsername      string     `gorm:"size:255" json:"onprem_username"`
	OnPremPassword      string     `gorm:"size:512" json:"-"`
	SyncIntervalMinutes int        `gorm:"default:15" json:"sync_interval_minutes"`
	IsConnected         bool       `json:"is_connected"`
	LastSyncAt          *time.Time `json:"last_sync"`
	CreatedAt           time.Time  `json:"created_at"`
}

// TrackerProject is a project as reported by either tracker.
type TrackerProject struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// TrackerIssueType is an issue type name as reported by either tracker.
type TrackerIssueType struct {
	Name string `json:"name"`
}

// TrackerIssue is the slice of a cloud issue the transfer pipeline needs.
type TrackerIssue struct {
	// Key is the full issue identifier (e.g. "PROJ-123")
	Key string `json:"key"`

	// Summary is the issue's one-line title
	Summary string `json:"summary"`

	// Description is the full body text of the issue
	Description string `json:"description"`

	// IssueType is the cloud issue type name (e.g. "Bug")
	IssueType string `json:"issue_type"`

	// Priority is the priority name, empty when the issue has none
	Priority string `json:"priority"`

	// CreatedAt is when the issue was created on the cloud tracker
	CreatedAt time.Time `json:"created_at"`
}

// NewIssue is a request to create an issue on the on-premise tracker.
type NewIssue struct {
	ProjectKey  string
	IssueType   string
	Summary     string
	Description string
	Priority    string
}

// ConnectionTestResult reports per-side reachability. Each side is
// probed independently; a failure on one never hides the other.
type ConnectionTestResult struct {
	CloudOK     bool   `json:"cloud"`
	CloudError  string `json:"cloud_error,omitempty"`
	OnPremOK    bool   `json:"onprem"`
	OnPremError string `json:"onprem_error,omitempty"`
}

// LogStats are the transfer log counts by status.
type LogStats struct {
	Pending int64 `json:"pending"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// DashboardStats is the read-only aggregate shown on the dashboard.
// It is recomputed from current store state on every call.
type DashboardStats struct {
	TotalMappings  int64      `json:"total_mappings"`
	ActiveMappings int64      `json:"active_mappings"`
	TotalSynced    int64      `json:"total_synced"`
	TotalErrors    int64      `json:"total_errors"`
	TotalPending   int64      `json:"total_pending"`
	IsConnected    bool       `json:"is_connected"`
	LastSync       *time.Time `json:"last_sync"`
}
