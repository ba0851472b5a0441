package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/bridge/internal/store"
	"github.com/danielolaszy/bridge/pkg/models"
)

// fakeTracker is an in-memory Tracker used by engine tests. Failure
// injection is per-field: createErr fails every creation, failSummaries
// fails creations for specific issues.
type fakeTracker struct {
	mu            sync.Mutex
	projects      []models.TrackerProject
	types         []models.TrackerIssueType
	issues        map[string][]models.TrackerIssue
	created       []models.NewIssue
	nextKey       int
	createErr     error
	failSummaries map[string]bool
	getErr        error
	searchErr     error
	testErr       error

	// When set, SearchIssuesSince signals searchStarted and then blocks
	// until searchRelease is closed. Used to hold a run open.
	searchStarted chan struct{}
	searchRelease chan struct{}
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:        make(map[string][]models.TrackerIssue),
		failSummaries: make(map[string]bool),
	}
}

func (f *fakeTracker) ListProjects() ([]models.TrackerProject, error) {
	if f.testErr != nil {
		return nil, f.testErr
	}
	return f.projects, nil
}

func (f *fakeTracker) ListIssueTypes() ([]models.TrackerIssueType, error) {
	return f.types, nil
}

func (f *fakeTracker) SearchIssuesSince(projectKey string, since *time.Time) ([]models.TrackerIssue, error) {
	if f.searchStarted != nil {
		f.searchStarted <- struct{}{}
		<-f.searchRelease
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.TrackerIssue
	for _, issue := range f.issues[projectKey] {
		if since != nil && issue.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (f *fakeTracker) GetIssue(key string) (*models.TrackerIssue, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, project := range f.issues {
		for _, issue := range project {
			if issue.Key == key {
				found := issue
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("issue %s does not exist", key)
}

func (f *fakeTracker) CreateIssue(req models.NewIssue) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	if f.failSummaries[req.Summary] {
		return "", errors.New("issue creation rejected")
	}

	f.nextKey++
	f.created = append(f.created, req)
	return fmt.Sprintf("%s-%d", req.ProjectKey, f.nextKey), nil
}

func (f *fakeTracker) Test() error {
	return f.testErr
}

func (f *fakeTracker) createdIssues() []models.NewIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NewIssue(nil), f.created...)
}

// staticFactory returns the same pair of fakes regardless of settings.
func staticFactory(cloud, onprem Tracker) ClientFactory {
	return func(side models.TrackerSide, _ *models.JiraSettings) (Tracker, error) {
		if side == models.SideCloud {
			return cloud, nil
		}
		return onprem, nil
	}
}

func newTestEngine(t *testing.T, st store.Store, cloud, onprem Tracker) *Engine {
	t.Helper()
	require.NoError(t, st.SaveSettings(&models.JiraSettings{
		CloudURL:       "https://example.atlassian.net",
		CloudEmail:     "sync@example.com",
		CloudAPIToken:  "token",
		OnPremURL:      "https://jira.internal.example.com",
		OnPremUsername: "sync",
		OnPremPassword: "password",
	}))
	return New(st, staticFactory(cloud, onprem))
}

// seedMapping creates an active PROJ -> ONP project mapping with a
// Bug -> Defect issue type translation.
func seedMapping(t *testing.T, st store.Store) *models.ProjectMapping {
	t.Helper()

	mapping := &models.ProjectMapping{
		CloudProjectKey:  "PROJ",
		CloudProjectName: "Project",
		OnPremProjectKey: "ONP",
		IsActive:         true,
	}
	require.NoError(t, st.CreateProjectMapping(mapping))
	require.NoError(t, st.CreateIssueTypeMapping(&models.IssueTypeMapping{
		ProjectMappingID: mapping.ID,
		CloudIssueType:   "Bug",
		OnPremIssueType:  "Defect",
	}))
	return mapping
}

func cloudIssue(key, summary, issueType string) models.TrackerIssue {
	return models.TrackerIssue{
		Key:       key,
		Summary:   summary,
		IssueType: issueType,
		CreatedAt: time.Now().UTC(),
	}
}

func TestRunOnceTransfersMappedIssues(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	mapping := seedMapping(t, st)

	issue := cloudIssue("PROJ-1", "Login fails on refresh", "Bug")
	issue.Description = "Steps to reproduce"
	issue.Priority = "High"
	cloud.issues["PROJ"] = []models.TrackerIssue{issue}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	row := logs[0]
	assert.Equal(t, models.StatusSuccess, row.Status)
	assert.Equal(t, "PROJ-1", row.CloudIssueKey)
	assert.Equal(t, mapping.ID, row.ProjectMappingID)
	require.NotNil(t, row.OnPremIssueKey)
	assert.Equal(t, "ONP-1", *row.OnPremIssueKey)
	assert.Nil(t, row.ErrorMessage)
	assert.Equal(t, 1, row.Attempts)
	assert.NotNil(t, row.CompletedAt)

	created := onprem.createdIssues()
	require.Len(t, created, 1)
	assert.Equal(t, "ONP", created[0].ProjectKey)
	assert.Equal(t, "Defect", created[0].IssueType)
	assert.Equal(t, "Login fails on refresh", created[0].Summary)
	assert.Equal(t, "Steps to reproduce", created[0].Description)
	assert.Equal(t, "High", created[0].Priority)
}

func TestRunOnceFillsEmptyDescription(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "No body", "Bug")}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	created := onprem.createdIssues()
	require.Len(t, created, 1)
	assert.Equal(t, "Synced from Jira Cloud", created[0].Description)
}

func TestRunOnceSkipsUnmappedIssueType(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.issues["PROJ"] = []models.TrackerIssue{
		cloudIssue("PROJ-1", "Mapped", "Bug"),
		cloudIssue("PROJ-2", "Unmapped", "Epic"),
	}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	// The unmapped issue leaves no trace: no on-premise issue, no log row.
	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "PROJ-1", logs[0].CloudIssueKey)
	assert.Len(t, onprem.createdIssues(), 1)
}

func TestRunOnceIgnoresInactiveMappings(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	mapping := seedMapping(t, st)

	_, err := st.ToggleProjectMapping(mapping.ID)
	require.NoError(t, err)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Ignored", "Bug")}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Empty(t, onprem.createdIssues())
}

func TestRunOnceRecordsFailedTransfer(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Doomed", "Bug")}
	onprem.createErr = errors.New("onprem returned HTTP 500")

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs(models.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].OnPremIssueKey)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "HTTP 500")
	assert.Equal(t, 1, logs[0].Attempts)
}

func TestRunOnceDoesNotRerunResolvedRows(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Flaky", "Bug")}
	onprem.createErr = errors.New("temporary outage")

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	// The outage is over, but failed rows re-run only via explicit retry.
	onprem.createErr = nil
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusFailed, logs[0].Status)
	assert.Equal(t, 1, logs[0].Attempts)
	assert.Empty(t, onprem.createdIssues())
}

func TestRunOnceNeverDuplicatesSuccessfulTransfers(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Once", "Bug")}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())
	require.NoError(t, eng.RunOnce())
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusSuccess, logs[0].Status)
	assert.Len(t, onprem.createdIssues(), 1)
}

func TestRunOnceResolvesPendingRows(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	mapping := seedMapping(t, st)

	// A pending row is the leftover of a run that died mid-attempt.
	_, created, err := st.FindOrCreateTransferLog(mapping.ID, "PROJ-1", "Orphaned")
	require.NoError(t, err)
	require.True(t, created)

	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Orphaned", "Bug")}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusSuccess, logs[0].Status)
}

func TestRunOnceIsolatesMappingFailures(t *testing.T) {
	st := store.NewMemoryStore()
	onprem := newFakeTracker()
	seedMapping(t, st)

	second := &models.ProjectMapping{
		CloudProjectKey:  "OTHER",
		OnPremProjectKey: "ONP2",
		IsActive:         true,
	}
	require.NoError(t, st.CreateProjectMapping(second))
	require.NoError(t, st.CreateIssueTypeMapping(&models.IssueTypeMapping{
		ProjectMappingID: second.ID,
		CloudIssueType:   "Task",
		OnPremIssueType:  "Task",
	}))

	// The first mapping's search blows up; the second must still sync.
	healthy := newFakeTracker()
	healthy.issues["OTHER"] = []models.TrackerIssue{cloudIssue("OTHER-1", "Survivor", "Task")}

	cloud := searchFunc(func(projectKey string, since *time.Time) ([]models.TrackerIssue, error) {
		if projectKey == "PROJ" {
			return nil, errors.New("search exploded")
		}
		return healthy.SearchIssuesSince(projectKey, since)
	})

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "OTHER-1", logs[0].CloudIssueKey)
	assert.Equal(t, models.StatusSuccess, logs[0].Status)
}

// searchFunc adapts a search function into a Tracker for routing tests.
type searchFunc func(projectKey string, since *time.Time) ([]models.TrackerIssue, error)

func (f searchFunc) ListProjects() ([]models.TrackerProject, error)     { return nil, nil }
func (f searchFunc) ListIssueTypes() ([]models.TrackerIssueType, error) { return nil, nil }
func (f searchFunc) SearchIssuesSince(projectKey string, since *time.Time) ([]models.TrackerIssue, error) {
	return f(projectKey, since)
}
func (f searchFunc) GetIssue(key string) (*models.TrackerIssue, error) {
	return nil, errors.New("not implemented")
}
func (f searchFunc) CreateIssue(req models.NewIssue) (string, error) {
	return "", errors.New("not implemented")
}
func (f searchFunc) Test() error { return nil }

func TestConcurrentTriggersRunOnce(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)

	cloud.searchStarted = make(chan struct{}, 1)
	cloud.searchRelease = make(chan struct{})

	eng := newTestEngine(t, st, cloud, onprem)

	require.True(t, eng.TriggerSync())
	<-cloud.searchStarted

	// The first run is held open inside search; nothing else may start.
	assert.False(t, eng.TriggerSync())
	assert.ErrorIs(t, eng.RunOnce(), ErrAlreadyRunning)

	running, _ := eng.Status()
	assert.True(t, running)

	close(cloud.searchRelease)
	cloud.searchStarted = nil

	require.Eventually(t, func() bool {
		running, last := eng.Status()
		return !running && last != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleRunFlagIsReclaimed(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st, newFakeTracker(), newFakeTracker())

	eng.mu.Lock()
	eng.running = true
	eng.runStartedAt = time.Now().Add(-time.Hour)
	eng.mu.Unlock()

	// An hour-old flag is the leftover of a crashed run, not a live one.
	assert.True(t, eng.begin())
}

func TestFreshRunFlagIsRespected(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st, newFakeTracker(), newFakeTracker())

	eng.mu.Lock()
	eng.running = true
	eng.runStartedAt = time.Now()
	eng.mu.Unlock()

	assert.False(t, eng.begin())
}

func TestRunOnceRecordsLastSync(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st, newFakeTracker(), newFakeTracker())

	require.NoError(t, eng.RunOnce())

	settings, err := st.GetSettings()
	require.NoError(t, err)
	require.NotNil(t, settings.LastSyncAt)
	assert.WithinDuration(t, time.Now().UTC(), *settings.LastSyncAt, time.Minute)
}

func TestEngineUsesFallbackSettings(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)
	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Env creds", "Bug")}

	// Nothing saved in the store; the environment-derived settings apply.
	eng := New(st, staticFactory(cloud, onprem),
		engineFallback())

	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs(models.StatusSuccess, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func engineFallback() Option {
	return WithFallbackSettings(&models.JiraSettings{
		CloudURL:  "https://example.atlassian.net",
		OnPremURL: "https://jira.internal.example.com",
	})
}

func TestEngineSkipsWhenUnconfigured(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()
	seedMapping(t, st)
	cloud.issues["PROJ"] = []models.TrackerIssue{cloudIssue("PROJ-1", "Never", "Bug")}

	// No stored settings and no fallback: the run is a no-op, not a crash.
	eng := New(st, staticFactory(cloud, onprem))
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMappingStartDateFiltersDiscovery(t *testing.T) {
	st := store.NewMemoryStore()
	cloud := newFakeTracker()
	onprem := newFakeTracker()

	start := time.Now().UTC().Add(-24 * time.Hour)
	mapping := &models.ProjectMapping{
		CloudProjectKey:  "PROJ",
		OnPremProjectKey: "ONP",
		IsActive:         true,
		StartDate:        &start,
	}
	require.NoError(t, st.CreateProjectMapping(mapping))
	require.NoError(t, st.CreateIssueTypeMapping(&models.IssueTypeMapping{
		ProjectMappingID: mapping.ID,
		CloudIssueType:   "Bug",
		OnPremIssueType:  "Defect",
	}))

	old := cloudIssue("PROJ-1", "Ancient", "Bug")
	old.CreatedAt = start.Add(-48 * time.Hour)
	fresh := cloudIssue("PROJ-2", "Recent", "Bug")
	cloud.issues["PROJ"] = []models.TrackerIssue{old, fresh}

	eng := newTestEngine(t, st, cloud, onprem)
	require.NoError(t, eng.RunOnce())

	logs, err := st.ListTransferLogs("", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "PROJ-2", logs[0].CloudIssueKey)
}
