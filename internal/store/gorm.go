package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/danielolaszy/bridge/pkg/models"
)

// GormStore is the MySQL-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// Open connects to MySQL and returns a migrated store.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm connection and runs migrations.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	err := db.AutoMigrate(
		&models.JiraSettings{},
		&models.ProjectMapping{},
		&models.IssueTypeMapping{},
		&models.TransferLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormStore{db: db}, nil
}

// GetSettings returns the stored tracker settings.
func (s *GormStore) GetSettings() (*models.JiraSettings, error) {
	var settings models.JiraSettings
	if err := s.db.Order("created_at DESC").Take(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

// SaveSettings replaces the stored settings row.
func (s *GormStore) SaveSettings(settings *models.JiraSettings) error {
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = time.Now().UTC()
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id <> ?", settings.ID).Delete(&models.JiraSettings{}).Error; err != nil {
			return err
		}
		return tx.Save(settings).Error
	})
}

// SetConnected records the outcome of the last connection test.
func (s *GormStore) SetConnected(connected bool) error {
	return s.db.Model(&models.JiraSettings{}).
		Where("1 = 1").
		Update("is_connected", connected).Error
}

// SetLastSync records the completion time of the last sync run.
func (s *GormStore) SetLastSync(at time.Time) error {
	return s.db.Model(&models.JiraSettings{}).
		Where("1 = 1").
		Update("last_sync_at", at.UTC()).Error
}

// CreateProjectMapping inserts a mapping, enforcing one active mapping
// per cloud project key.
func (s *GormStore) CreateProjectMapping(mapping *models.ProjectMapping) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.ProjectMapping{}).
			Where("cloud_project_key = ? AND is_active = ?", mapping.CloudProjectKey, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: cloud project %s", ErrDuplicateMapping, mapping.CloudProjectKey)
		}

		if mapping.ID == "" {
			mapping.ID = uuid.NewString()
		}
		if mapping.CreatedAt.IsZero() {
			mapping.CreatedAt = time.Now().UTC()
		}
		return tx.Create(mapping).Error
	})
}

// GetProjectMapping returns one mapping by id.
func (s *GormStore) GetProjectMapping(id string) (*models.ProjectMapping, error) {
	var mapping models.ProjectMapping
	if err := s.db.Where("id = ?", id).Take(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

// ListProjectMappings returns all mappings, newest first.
func (s *GormStore) ListProjectMappings() ([]models.ProjectMapping, error) {
	var mappings []models.ProjectMapping
	err := s.db.Order("created_at DESC").Find(&mappings).Error
	return mappings, err
}

// ListActiveProjectMappings returns active mappings, oldest first so a
// sync run visits long-standing mappings before recent ones.
func (s *GormStore) ListActiveProjectMappings() ([]models.ProjectMapping, error) {
	var mappings []models.ProjectMapping
	err := s.db.Where("is_active = ?", true).Order("created_at ASC").Find(&mappings).Error
	return mappings, err
}

// ToggleProjectMapping flips is_active and returns the new state.
// Children and transfer history are untouched.
func (s *GormStore) ToggleProjectMapping(id string) (bool, error) {
	var newState bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var mapping models.ProjectMapping
		if err := tx.Where("id = ?", id).Take(&mapping).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		newState = !mapping.IsActive
		return tx.Model(&mapping).Update("is_active", newState).Error
	})
	return newState, err
}

// DeleteProjectMapping removes the mapping and its issue-type mappings.
// Transfer logs referencing the mapping are kept: the audit trail takes
// precedence over referential cleanup.
func (s *GormStore) DeleteProjectMapping(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&models.ProjectMapping{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("project_mapping_id = ?", id).Delete(&models.IssueTypeMapping{}).Error
	})
}

// CreateIssueTypeMapping inserts a translation under its project
// mapping, enforcing per-project uniqueness of the cloud type name.
func (s *GormStore) CreateIssueTypeMapping(mapping *models.IssueTypeMapping) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var parentCount int64
		err := tx.Model(&models.ProjectMapping{}).
			Where("id = ?", mapping.ProjectMappingID).
			Count(&parentCount).Error
		if err != nil {
			return err
		}
		if parentCount == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownProjectMapping, mapping.ProjectMappingID)
		}

		var count int64
		err = tx.Model(&models.IssueTypeMapping{}).
			Where("project_mapping_id = ? AND cloud_issue_type = ?",
				mapping.ProjectMappingID, mapping.CloudIssueType).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: issue type %s", ErrDuplicateMapping, mapping.CloudIssueType)
		}

		if mapping.ID == "" {
			mapping.ID = uuid.NewString()
		}
		if mapping.CreatedAt.IsZero() {
			mapping.CreatedAt = time.Now().UTC()
		}
		return tx.Create(mapping).Error
	})
}

// ListIssueTypeMappings returns the translations for one project
// mapping, or the flattened view across all mappings when id is empty.
func (s *GormStore) ListIssueTypeMappings(projectMappingID string) ([]models.IssueTypeMapping, error) {
	var mappings []models.IssueTypeMapping
	query := s.db.Order("created_at ASC")
	if projectMappingID != "" {
		query = query.Where("project_mapping_id = ?", projectMappingID)
	}
	err := query.Find(&mappings).Error
	return mappings, err
}

// DeleteIssueTypeMapping removes one translation.
func (s *GormStore) DeleteIssueTypeMapping(id string) error {
	result := s.db.Where("id = ?", id).Delete(&models.IssueTypeMapping{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateTransferLog returns the current row for the issue,
// creating a pending one when none exists. The unique index on
// (project_mapping_id, cloud_issue_key) backs the invariant; a create
// racing another writer falls back to re-reading the winner's row.
func (s *GormStore) FindOrCreateTransferLog(projectMappingID, cloudIssueKey, summary string) (*models.TransferLog, bool, error) {
	existing, err := s.findTransferLog(projectMappingID, cloudIssueKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	log := &models.TransferLog{
		ID:                uuid.NewString(),
		ProjectMappingID:  projectMappingID,
		CloudIssueKey:     cloudIssueKey,
		CloudIssueSummary: summary,
		Status:            models.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.db.Create(log).Error; err != nil {
		// Unique index collision: someone created the row first.
		if winner, ferr := s.findTransferLog(projectMappingID, cloudIssueKey); ferr == nil {
			return winner, false, nil
		}
		return nil, false, err
	}

	return log, true, nil
}

func (s *GormStore) findTransferLog(projectMappingID, cloudIssueKey string) (*models.TransferLog, error) {
	var log models.TransferLog
	err := s.db.Where("project_mapping_id = ? AND cloud_issue_key = ?",
		projectMappingID, cloudIssueKey).Take(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// GetTransferLog returns one log row by id.
func (s *GormStore) GetTransferLog(id string) (*models.TransferLog, error) {
	var log models.TransferLog
	if err := s.db.Where("id = ?", id).Take(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// UpdateTransferLog persists a mutated log row in place.
func (s *GormStore) UpdateTransferLog(log *models.TransferLog) error {
	result := s.db.Model(&models.TransferLog{}).Where("id = ?", log.ID).
		Select("status", "on_prem_issue_key", "error_message", "attempts", "last_attempt_at", "completed_at", "cloud_issue_summary").
		Updates(log)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTransferLogs returns log rows newest first, optionally filtered
// by status. A limit of 0 means no limit.
func (s *GormStore) ListTransferLogs(status models.TransferStatus, limit int) ([]models.TransferLog, error) {
	var logs []models.TransferLog
	query := s.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&logs).Error
	return logs, err
}

// CountTransferLogs returns log counts grouped by status.
func (s *GormStore) CountTransferLogs() (models.LogStats, error) {
	var stats models.LogStats

	type row struct {
		Status models.TransferStatus
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.TransferLog{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		switch r.Status {
		case models.StatusPending:
			stats.Pending = r.N
		case models.StatusSuccess:
			stats.Success = r.N
		case models.StatusFailed:
			stats.Failed = r.N
		}
	}
	return stats, nil
}

// CountProjectMappings returns total and active mapping counts.
func (s *GormStore) CountProjectMappings() (total, active int64, err error) {
	if err = s.db.Model(&models.ProjectMapping{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = s.db.Model(&models.ProjectMapping{}).Where("is_active = ?", true).Count(&active).Error
	return total, active, err
}

// LastTransferAt returns the creation time of the newest log row, or
// nil when the log is empty.
func (s *GormStore) LastTransferAt() (*time.Time, error) {
	var log models.TransferLog
	err := s.db.Order("created_at DESC").Take(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log.CreatedAt, nil
}
