package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danielolaszy/bridge/internal/logging"
	"github.com/danielolaszy/bridge/internal/store"
	"github.com/danielolaszy/bridge/pkg/models"
)

// Retry re-executes the transfer for one failed log row and returns the
// updated row. It uses the same issue-type resolution and creation path
// as the orchestrator, and the same per-issue lock, so a retry can
// never race a scheduled run into a duplicate on-premise issue.
func (e *Engine) Retry(logID string) (*models.TransferLog, error) {
	log, err := e.store.GetTransferLog(logID)
	if err != nil {
		return nil, err
	}
	if log.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, log.Status)
	}

	mapping, err := e.store.GetProjectMapping(log.ProjectMappingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: the project mapping for this transfer was deleted",
				store.ErrUnknownProjectMapping)
		}
		return nil, err
	}

	settings, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	cloud, err := e.factory(models.SideCloud, settings)
	if err != nil {
		return nil, err
	}
	onprem, err := e.factory(models.SideOnPrem, settings)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(transferKey(mapping.ID, log.CloudIssueKey))
	defer unlock()

	// Re-read under the lock: a concurrent run or retry may have resolved
	// the row while we were waiting.
	log, err = e.store.GetTransferLog(logID)
	if err != nil {
		return nil, err
	}
	if log.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, log.Status)
	}

	issue, err := cloud.GetIssue(log.CloudIssueKey)
	if err != nil {
		e.recordFailure(log, fmt.Errorf("failed to re-read cloud issue: %w", err))
		return log, nil
	}

	typeMap, err := e.issueTypeMap(mapping.ID)
	if err != nil {
		return nil, err
	}
	onpremType, ok := typeMap[issue.IssueType]
	if !ok {
		// The row already exists as failed, so unlike discovery this is
		// recorded rather than silently skipped.
		e.recordFailure(log, fmt.Errorf("no issue type mapping for %q under this project", issue.IssueType))
		return log, nil
	}

	e.attempt(onprem, mapping.OnPremProjectKey, onpremType, *issue, log)
	return log, nil
}

// RetryAll dispatches a retry for every failed log row through a
// bounded worker pool. One row's failure never aborts the batch. The
// returned count is the number of rows dispatched, not the number that
// succeeded; callers read per-row outcomes from the log.
func (e *Engine) RetryAll() (int, error) {
	failed, err := e.store.ListTransferLogs(models.StatusFailed, 0)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, retryWorkers)
	var wg sync.WaitGroup

	for _, row := range failed {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := e.Retry(id); err != nil {
				logging.Warn("bulk retry item failed",
					"log_id", id,
					"error", err)
			}
		}(row.ID)
	}

	wg.Wait()
	return len(failed), nil
}
