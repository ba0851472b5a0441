// Package engine implements the reconciliation core: the sync
// orchestrator that discovers cloud issues and transfers them to the
// on-premise tracker, the retry coordinator that re-runs failed
// transfers, and the connection tester.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielolaszy/bridge/internal/jira"
	"github.com/danielolaszy/bridge/internal/logging"
	"github.com/danielolaszy/bridge/internal/store"
	"github.com/danielolaszy/bridge/pkg/models"
)

// Sentinel errors returned by engine operations.
var (
	// ErrAlreadyRunning is returned when a run is requested while one is
	// active. Rapid repeated triggers are no-ops, never a second scan.
	ErrAlreadyRunning = errors.New("sync run already in progress")

	// ErrInvalidState is returned when retrying a transfer log that is
	// not in the failed state.
	ErrInvalidState = errors.New("transfer log is not retryable")
)

// Tracker is the slice of tracker behavior the engine consumes. Both
// sides are the same interface; the engine reads from one and creates
// in the other. *jira.Client satisfies it; tests substitute fakes.
type Tracker interface {
	ListProjects() ([]models.TrackerProject, error)
	ListIssueTypes() ([]models.TrackerIssueType, error)
	SearchIssuesSince(projectKey string, since *time.Time) ([]models.TrackerIssue, error)
	GetIssue(key string) (*models.TrackerIssue, error)
	CreateIssue(req models.NewIssue) (string, error)
	Test() error
}

// ClientFactory builds a tracker client for one side from settings.
// Settings are passed explicitly so connection tests can probe values
// that have not been saved yet.
type ClientFactory func(side models.TrackerSide, settings *models.JiraSettings) (Tracker, error)

// DefaultClientFactory builds real Jira clients.
func DefaultClientFactory(side models.TrackerSide, settings *models.JiraSettings) (Tracker, error) {
	return jira.NewClient(side, settings)
}

const (
	// defaultInterval is the scheduled sync cadence.
	defaultInterval = 15 * time.Minute

	// retryWorkers bounds concurrent dispatch in RetryAll so bulk retry
	// does not hammer the on-premise tracker.
	retryWorkers = 4
)

// Engine drives issue transfer between the two trackers.
type Engine struct {
	store    store.Store
	factory  ClientFactory
	fallback *models.JiraSettings
	interval time.Duration

	// staleAfter force-clears a run flag older than the maximum plausible
	// run duration, so a crash mid-run cannot wedge future triggers.
	staleAfter time.Duration

	locks *keyedMutex

	mu           sync.Mutex
	running      bool
	runStartedAt time.Time
	lastRunAt    *time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the scheduled sync cadence.
func WithInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// WithFallbackSettings supplies environment-derived tracker settings
// used when none are persisted yet.
func WithFallbackSettings(settings *models.JiraSettings) Option {
	return func(e *Engine) {
		e.fallback = settings
	}
}

// WithStaleTimeout overrides the run-flag staleness cutoff.
func WithStaleTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.staleAfter = timeout
		}
	}
}

// New creates an engine on top of the given store and client factory.
func New(st store.Store, factory ClientFactory, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		factory:  factory,
		interval: defaultInterval,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.staleAfter == 0 {
		e.staleAfter = 2 * e.interval
		if e.staleAfter < 30*time.Minute {
			e.staleAfter = 30 * time.Minute
		}
	}

	return e
}

// Start runs the scheduler until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	logging.Info("sync scheduler started", "interval", e.interval.String())

	for {
		select {
		case <-ctx.Done():
			logging.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			if err := e.RunOnce(); errors.Is(err, ErrAlreadyRunning) {
				logging.Warn("skipping scheduled sync, previous run still active")
			}
		}
	}
}

// TriggerSync starts a run in the background and reports acceptance,
// not completion. It returns false when a run is already active.
func (e *Engine) TriggerSync() bool {
	if !e.begin() {
		return false
	}
	go e.runGuarded()
	return true
}

// RunOnce executes a full scan-and-transfer pass synchronously.
func (e *Engine) RunOnce() error {
	if !e.begin() {
		return ErrAlreadyRunning
	}
	e.runGuarded()
	return nil
}

// Status reports whether a run is active and when the last one finished.
func (e *Engine) Status() (running bool, lastRunAt *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running, e.lastRunAt
}

// begin claims the run-in-progress flag. A flag older than staleAfter
// is treated as the leftover of a crashed run and reclaimed.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		if time.Since(e.runStartedAt) < e.staleAfter {
			return false
		}
		logging.Warn("force-clearing stale run flag",
			"started_at", e.runStartedAt.Format(time.RFC3339))
	}

	e.running = true
	e.runStartedAt = time.Now().UTC()
	return true
}

// runGuarded executes one pass and always clears the run flag.
func (e *Engine) runGuarded() {
	defer func() {
		now := time.Now().UTC()

		e.mu.Lock()
		e.running = false
		e.lastRunAt = &now
		e.mu.Unlock()

		if err := e.store.SetLastSync(now); err != nil {
			logging.Error("failed to record last sync time", "error", err)
		}
	}()

	e.scan()
}

// scan is one full pass across all active project mappings. Failures
// are isolated per mapping and per issue; nothing here aborts the run.
func (e *Engine) scan() {
	settings, err := e.loadSettings()
	if err != nil {
		logging.Warn("sync skipped, tracker settings not configured", "error", err)
		return
	}

	cloud, err := e.factory(models.SideCloud, settings)
	if err != nil {
		logging.Error("failed to build cloud client", "error", err)
		return
	}
	onprem, err := e.factory(models.SideOnPrem, settings)
	if err != nil {
		logging.Error("failed to build on-premise client", "error", err)
		return
	}

	mappings, err := e.store.ListActiveProjectMappings()
	if err != nil {
		logging.Error("failed to list active project mappings", "error", err)
		return
	}

	logging.Info("sync run starting", "active_mappings", len(mappings))

	transferred := 0
	for _, mapping := range mappings {
		count, err := e.syncMapping(cloud, onprem, mapping)
		if err != nil {
			logging.Error("project mapping sync failed",
				"cloud_project", mapping.CloudProjectKey,
				"error", err)
			continue
		}
		transferred += count
	}

	logging.Info("sync run complete", "transferred", transferred)
}

// syncMapping discovers and transfers eligible issues for one mapping,
// oldest first. It returns the number of successful transfers.
func (e *Engine) syncMapping(cloud, onprem Tracker, mapping models.ProjectMapping) (int, error) {
	typeMap, err := e.issueTypeMap(mapping.ID)
	if err != nil {
		return 0, err
	}
	if len(typeMap) == 0 {
		logging.Debug("no issue type mappings for project, nothing to transfer",
			"cloud_project", mapping.CloudProjectKey)
		return 0, nil
	}

	issues, err := cloud.SearchIssuesSince(mapping.CloudProjectKey, mapping.StartDate)
	if err != nil {
		return 0, fmt.Errorf("failed to search cloud issues: %w", err)
	}

	transferred := 0
	for _, issue := range issues {
		if e.transferIssue(onprem, &mapping, typeMap, issue) {
			transferred++
		}
	}
	return transferred, nil
}

// transferIssue moves one cloud issue to the on-premise tracker,
// reporting whether a new on-premise issue was created. An issue whose
// type has no mapping is deliberately skipped and produces no log row:
// it is out of scope, not erroneous. The transfer decision is keyed off
// the stored log, not tracker timestamps, so clock skew and pagination
// gaps cannot cause double-creation.
func (e *Engine) transferIssue(onprem Tracker, mapping *models.ProjectMapping, typeMap map[string]string, issue models.TrackerIssue) bool {
	onpremType, ok := typeMap[issue.IssueType]
	if !ok {
		logging.Debug("skipping issue with unmapped type",
			"cloud_issue", issue.Key,
			"issue_type", issue.IssueType)
		return false
	}

	unlock := e.locks.Lock(transferKey(mapping.ID, issue.Key))
	defer unlock()

	log, created, err := e.store.FindOrCreateTransferLog(mapping.ID, issue.Key, issue.Summary)
	if err != nil {
		logging.Error("failed to record transfer log",
			"cloud_issue", issue.Key,
			"error", err)
		return false
	}
	if !created && log.Status != models.StatusPending {
		// Success rows are done; failed rows re-run only via explicit retry.
		return false
	}

	e.attempt(onprem, mapping.OnPremProjectKey, onpremType, issue, log)
	return log.Status == models.StatusSuccess
}

// attempt performs one on-premise creation and mutates the log row in
// place to its terminal state.
func (e *Engine) attempt(onprem Tracker, onpremProjectKey, onpremType string, issue models.TrackerIssue, log *models.TransferLog) {
	now := time.Now().UTC()
	log.Attempts++
	log.LastAttemptAt = &now
	if issue.Summary != "" {
		log.CloudIssueSummary = issue.Summary
	}

	description := issue.Description
	if description == "" {
		description = "Synced from Jira Cloud"
	}

	key, err := onprem.CreateIssue(models.NewIssue{
		ProjectKey:  onpremProjectKey,
		IssueType:   onpremType,
		Summary:     issue.Summary,
		Description: description,
		Priority:    issue.Priority,
	})

	completed := time.Now().UTC()
	if err != nil {
		msg := err.Error()
		log.Status = models.StatusFailed
		log.ErrorMessage = &msg
		log.OnPremIssueKey = nil
		log.CompletedAt = &completed
		logging.Error("transfer failed",
			"cloud_issue", issue.Key,
			"attempts", log.Attempts,
			"error", err)
	} else {
		log.Status = models.StatusSuccess
		log.OnPremIssueKey = &key
		log.ErrorMessage = nil
		log.CompletedAt = &completed
		logging.Info("transferred issue",
			"cloud_issue", issue.Key,
			"onprem_issue", key)
	}

	if err := e.store.UpdateTransferLog(log); err != nil {
		logging.Error("failed to update transfer log",
			"log_id", log.ID,
			"error", err)
	}
}

// recordFailure marks a log row failed without an on-premise attempt,
// used when the retry pipeline fails before reaching creation.
func (e *Engine) recordFailure(log *models.TransferLog, cause error) {
	now := time.Now().UTC()
	msg := cause.Error()
	log.Attempts++
	log.LastAttemptAt = &now
	log.Status = models.StatusFailed
	log.ErrorMessage = &msg
	log.CompletedAt = &now

	if err := e.store.UpdateTransferLog(log); err != nil {
		logging.Error("failed to update transfer log",
			"log_id", log.ID,
			"error", err)
	}
}

// issueTypeMap loads one project mapping's issue type translations as a
// cloud-type -> onprem-type map.
func (e *Engine) issueTypeMap(projectMappingID string) (map[string]string, error) {
	mappings, err := e.store.ListIssueTypeMappings(projectMappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue type mappings: %w", err)
	}

	typeMap := make(map[string]string, len(mappings))
	for _, tm := range mappings {
		typeMap[tm.CloudIssueType] = tm.OnPremIssueType
	}
	return typeMap, nil
}

// TrackerFor builds a client for one side from the effective settings.
func (e *Engine) TrackerFor(side models.TrackerSide) (Tracker, error) {
	settings, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	return e.factory(side, settings)
}

// loadSettings returns persisted settings, falling back to the
// environment-derived ones when nothing is stored yet.
func (e *Engine) loadSettings() (*models.JiraSettings, error) {
	settings, err := e.store.GetSettings()
	if err == nil {
		return settings, nil
	}
	if errors.Is(err, store.ErrNotFound) && e.fallback != nil {
		return e.fallback, nil
	}
	return nil, err
}
