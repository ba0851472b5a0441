package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielolaszy/bridge/pkg/models"
)

// MemoryStore is an in-memory Store used in tests and for running the
// bridge without a database. All methods are safe for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	settings     *models.JiraSettings
	mappings     map[string]models.ProjectMapping
	typeMappings map[string]models.IssueTypeMapping
	logs         map[string]models.TransferLog
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings:     make(map[string]models.ProjectMapping),
		typeMappings: make(map[string]models.IssueTypeMapping),
		logs:         make(map[string]models.TransferLog),
	}
}

// GetSettings returns the stored tracker settings.
func (s *MemoryStore) GetSettings() (*models.JiraSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, ErrNotFound
	}
	settings := *s.settings
	return &settings, nil
}

// SaveSettings replaces the stored settings.
func (s *MemoryStore) SaveSettings(settings *models.JiraSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = time.Now().UTC()
	}
	copied := *settings
	s.settings = &copied
	return nil
}

// SetConnected records the outcome of the last connection test.
func (s *MemoryStore) SetConnected(connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings != nil {
		s.settings.IsConnected = connected
	}
	return nil
}

// SetLastSync records the completion time of the last sync run.
func (s *MemoryStore) SetLastSync(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings != nil {
		at = at.UTC()
		s.settings.LastSyncAt = &at
	}
	return nil
}

// CreateProjectMapping inserts a mapping, enforcing one active mapping
// per cloud project key.
func (s *MemoryStore) CreateProjectMapping(mapping *models.ProjectMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.mappings {
		if existing.CloudProjectKey == mapping.CloudProjectKey && existing.IsActive {
			return fmt.Errorf("%w: cloud project %s", ErrDuplicateMapping, mapping.CloudProjectKey)
		}
	}

	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	s.mappings[mapping.ID] = *mapping
	return nil
}

// GetProjectMapping returns one mapping by id.
func (s *MemoryStore) GetProjectMapping(id string) (*models.ProjectMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, ok := s.mappings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &mapping, nil
}

// ListProjectMappings returns all mappings, newest first.
func (s *MemoryStore) ListProjectMappings() ([]models.ProjectMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mappings := make([]models.ProjectMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		mappings = append(mappings, m)
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.After(mappings[j].CreatedAt)
	})
	return mappings, nil
}

// ListActiveProjectMappings returns active mappings, oldest first.
func (s *MemoryStore) ListActiveProjectMappings() ([]models.ProjectMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mappings []models.ProjectMapping
	for _, m := range s.mappings {
		if m.IsActive {
			mappings = append(mappings, m)
		}
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})
	return mappings, nil
}

// ToggleProjectMapping flips is_active and returns the new state.
func (s *MemoryStore) ToggleProjectMapping(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.mappings[id]
	if !ok {
		return false, ErrNotFound
	}
	mapping.IsActive = !mapping.IsActive
	s.mappings[id] = mapping
	return mapping.IsActive, nil
}

// DeleteProjectMapping removes the mapping and cascades to its
// issue-type mappings; transfer logs are kept.
func (s *MemoryStore) DeleteProjectMapping(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[id]; !ok {
		return ErrNotFound
	}
	delete(s.mappings, id)

	for typeID, tm := range s.typeMappings {
		if tm.ProjectMappingID == id {
			delete(s.typeMappings, typeID)
		}
	}
	return nil
}

// CreateIssueTypeMapping inserts a translation under its project mapping.
func (s *MemoryStore) CreateIssueTypeMapping(mapping *models.IssueTypeMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[mapping.ProjectMappingID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProjectMapping, mapping.ProjectMappingID)
	}

	for _, existing := range s.typeMappings {
		if existing.ProjectMappingID == mapping.ProjectMappingID &&
			existing.CloudIssueType == mapping.CloudIssueType {
			return fmt.Errorf("%w: issue type %s", ErrDuplicateMapping, mapping.CloudIssueType)
		}
	}

	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	s.typeMappings[mapping.ID] = *mapping
	return nil
}

// ListIssueTypeMappings returns translations scoped to one project
// mapping, or all of them when id is empty.
func (s *MemoryStore) ListIssueTypeMappings(projectMappingID string) ([]models.IssueTypeMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mappings := make([]models.IssueTypeMapping, 0, len(s.typeMappings))
	for _, tm := range s.typeMappings {
		if projectMappingID == "" || tm.ProjectMappingID == projectMappingID {
			mappings = append(mappings, tm)
		}
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})
	return mappings, nil
}

// DeleteIssueTypeMapping removes one translation.
func (s *MemoryStore) DeleteIssueTypeMapping(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.typeMappings[id]; !ok {
		return ErrNotFound
	}
	delete(s.typeMappings, id)
	return nil
}

// FindOrCreateTransferLog returns the current row for the issue,
// creating a pending one when none exists.
func (s *MemoryStore) FindOrCreateTransferLog(projectMappingID, cloudIssueKey, summary string) (*models.TransferLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, log := range s.logs {
		if log.ProjectMappingID == projectMappingID && log.CloudIssueKey == cloudIssueKey {
			found := log
			return &found, false, nil
		}
	}

	log := models.TransferLog{
		ID:                uuid.NewString(),
		ProjectMappingID:  projectMappingID,
		CloudIssueKey:     cloudIssueKey,
		CloudIssueSummary: summary,
		Status:            models.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	s.logs[log.ID] = log
	created := log
	return &created, true, nil
}

// GetTransferLog returns one log row by id.
func (s *MemoryStore) GetTransferLog(id string) (*models.TransferLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &log, nil
}

// UpdateTransferLog persists a mutated log row in place.
func (s *MemoryStore) UpdateTransferLog(log *models.TransferLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[log.ID]; !ok {
		return ErrNotFound
	}
	s.logs[log.ID] = *log
	return nil
}

// ListTransferLogs returns log rows newest first, optionally filtered
// by status. A limit of 0 means no limit.
func (s *MemoryStore) ListTransferLogs(status models.TransferStatus, limit int) ([]models.TransferLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]models.TransferLog, 0, len(s.logs))
	for _, log := range s.logs {
		if status == "" || log.Status == status {
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// CountTransferLogs returns log counts grouped by status.
func (s *MemoryStore) CountTransferLogs() (models.LogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.LogStats
	for _, log := range s.logs {
		switch log.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusSuccess:
			stats.Success++
		case models.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// CountProjectMappings returns total and active mapping counts.
func (s *MemoryStore) CountProjectMappings() (total, active int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.mappings {
		total++
		if m.IsActive {
			active++
		}
	}
	return total, active, nil
}

// LastTransferAt returns the creation time of the newest log row, or
// nil when the log is empty.
func (s *MemoryStore) LastTransferAt() (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *time.Time
	for _, log := range s.logs {
		created := log.CreatedAt
		if last == nil || created.After(*last) {
			last = &created
		}
	}
	return last, nil
}
