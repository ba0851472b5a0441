// Package store persists the bridge's reconciliation state: tracker
// settings, project and issue-type mappings, and the append-only
// transfer log.
package store

import (
	"errors"
	"time"

	"github.com/danielolaszy/bridge/pkg/models"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateMapping is returned when a mapping would violate a
	// uniqueness invariant: a second active mapping for the same cloud
	// project key, or a second translation for the same cloud issue type
	// under one project mapping.
	ErrDuplicateMapping = errors.New("mapping already exists")

	// ErrUnknownProjectMapping is returned when an issue-type mapping
	// references a project mapping that does not exist.
	ErrUnknownProjectMapping = errors.New("unknown project mapping")
)

// Store is the persistence contract shared by the MySQL-backed
// implementation and the in-memory implementation used in tests.
type Store interface {
	// Settings. A single row is kept; SaveSettings replaces it.
	GetSettings() (*models.JiraSettings, error)
	SaveSettings(settings *models.JiraSettings) error
	SetConnected(connected bool) error
	SetLastSync(at time.Time) error

	// Project mappings. CreateProjectMapping fails with
	// ErrDuplicateMapping while another active mapping holds the same
	// cloud project key. DeleteProjectMapping cascades to the mapping's
	// issue-type mappings but never to its transfer logs.
	CreateProjectMapping(mapping *models.ProjectMapping) error
	GetProjectMapping(id string) (*models.ProjectMapping, error)
	ListProjectMappings() ([]models.ProjectMapping, error)
	ListActiveProjectMappings() ([]models.ProjectMapping, error)
	ToggleProjectMapping(id string) (bool, error)
	DeleteProjectMapping(id string) error

	// Issue-type mappings, always scoped to one project mapping.
	// ListIssueTypeMappings with an empty id is the legacy unscoped view:
	// a flatten across all project mappings, not a second source of truth.
	CreateIssueTypeMapping(mapping *models.IssueTypeMapping) error
	ListIssueTypeMappings(projectMappingID string) ([]models.IssueTypeMapping, error)
	DeleteIssueTypeMapping(id string) error

	// Transfer logs. FindOrCreateTransferLog enforces the one-row-per-
	// (project mapping, cloud issue key) invariant: it returns the
	// existing row when present and reports whether a row was created.
	FindOrCreateTransferLog(projectMappingID, cloudIssueKey, summary string) (*models.TransferLog, bool, error)
	GetTransferLog(id string) (*models.TransferLog, error)
	UpdateTransferLog(log *models.TransferLog) error
	ListTransferLogs(status models.TransferStatus, limit int) ([]models.TransferLog, error)
	CountTransferLogs() (models.LogStats, error)
	CountProjectMappings() (total, active int64, err error)
	LastTransferAt() (*time.Time, error)
}
