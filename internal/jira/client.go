// Package jira provides clients for the two Jira instances the bridge
// reconciles: the cloud tracker issues are read from and the on-premise
// tracker issues are created in.
package jira

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/bridge/pkg/models"
)

// Sentinel errors classifying tracker failures for callers.
var (
	// ErrUpstreamUnavailable is returned when a tracker cannot be reached
	// or answers with a server error. These failures are retryable.
	ErrUpstreamUnavailable = errors.New("tracker unavailable")

	// ErrAuthFailed is returned on 401/403 responses. These are not
	// retryable until the stored credentials are corrected.
	ErrAuthFailed = errors.New("tracker authentication failed")
)

const (
	// requestTimeout bounds every tracker call. Tracker calls are the only
	// blocking operations in the system; a hung call must become a failed
	// transfer, not a wedged run.
	requestTimeout = 30 * time.Second

	// searchPageSize is the page size used when walking search results.
	searchPageSize = 50
)

// Client handles interactions with one Jira instance.
type Client struct {
	side   models.TrackerSide
	client *jira.Client
}

// NewClient creates a client for the given side of the bridge using the
// supplied settings. Settings are passed explicitly so callers can probe
// credentials before persisting them.
func NewClient(side models.TrackerSide, settings *models.JiraSettings) (*Client, error) {
	if settings == nil {
		return nil, fmt.Errorf("jira settings not configured")
	}

	var baseURL string
	tp := jira.BasicAuthTransport{}

	switch side {
	case models.SideCloud:
		baseURL = settings.CloudURL
		tp.Username = settings.CloudEmail
		tp.Password = settings.CloudAPIToken
	case models.SideOnPrem:
		baseURL = settings.OnPremURL
		tp.Username = settings.OnPremUsername
		tp.Password = settings.OnPremPassword
		// On-premise instances routinely run self-signed certificates.
		tp.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	default:
		return nil, fmt.Errorf("unknown tracker side: %q", side)
	}

	if baseURL == "" {
		return nil, fmt.Errorf("%s jira url not configured", side)
	}

	httpClient := tp.Client()
	httpClient.Timeout = requestTimeout

	client, err := jira.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s jira client: %w", side, err)
	}

	return &Client{side: side, client: client}, nil
}

// Side reports which tracker this client talks to.
func (c *Client) Side() models.TrackerSide {
	return c.side
}

// ListProjects returns all projects visible to the configured credentials.
func (c *Client) ListProjects() ([]models.TrackerProject, error) {
	list, resp, err := c.client.Project.GetList()
	if err != nil {
		return nil, c.wrap("list projects", resp, err)
	}

	projects := make([]models.TrackerProject, 0, len(*list))
	for _, p := range *list {
		projects = append(projects, models.TrackerProject{Key: p.Key, Name: p.Name})
	}

	return projects, nil
}

// ListIssueTypes returns the instance's issue type names, de-duplicated
// by name. Jira reports one entry per type per scheme, which would show
// "Bug" a dozen times in a mapping picker.
func (c *Client) ListIssueTypes() ([]models.TrackerIssueType, error) {
	list, resp, err := c.client.IssueType.GetList()
	if err != nil {
		return nil, c.wrap("list issue types", resp, err)
	}

	seen := make(map[string]bool, len(list))
	types := make([]models.TrackerIssueType, 0, len(list))
	for _, t := range list {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		types = append(types, models.TrackerIssueType{Name: t.Name})
	}

	return types, nil
}

// SearchIssuesSince returns every issue in the project created at or
// after since (all issues when since is nil), oldest first. Results are
// paginated; all pages are walked so a sync run never misses issues
// beyond the first page.
func (c *Client) SearchIssuesSince(projectKey string, since *time.Time) ([]models.TrackerIssue, error) {
	jql := buildSinceJQL(projectKey, since)

	var issues []models.TrackerIssue
	startAt := 0

	for {
		opts := &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: searchPageSize,
			Fields:     []string{"summary", "description", "issuetype", "priority", "created"},
		}

		page, resp, err := c.client.Issue.Search(jql, opts)
		if err != nil {
			return nil, c.wrap("search issues", resp, err)
		}

		for _, issue := range page {
			issues = append(issues, convertIssue(issue))
		}

		startAt += len(page)
		if len(page) == 0 || resp == nil || startAt >= resp.Total {
			break
		}
	}

	return issues, nil
}

// GetIssue fetches a single issue by key.
func (c *Client) GetIssue(key string) (*models.TrackerIssue, error) {
	issue, resp, err := c.client.Issue.Get(key, nil)
	if err != nil {
		return nil, c.wrap(fmt.Sprintf("get issue %s", key), resp, err)
	}

	converted := convertIssue(*issue)
	return &converted, nil
}

// CreateIssue creates an issue on this tracker and returns its key.
func (c *Client) CreateIssue(req models.NewIssue) (string, error) {
	fields := &jira.IssueFields{
		Project:     jira.Project{Key: req.ProjectKey},
		Summary:     req.Summary,
		Description: req.Description,
		Type:        jira.IssueType{Name: req.IssueType},
	}
	if req.Priority != "" {
		fields.Priority = &jira.Priority{Name: req.Priority}
	}

	created, resp, err := c.client.Issue.Create(&jira.Issue{Fields: fields})
	if err != nil {
		return "", c.wrap("create issue", resp, err)
	}

	return created.Key, nil
}

// Test probes the instance with the cheapest authenticated read.
func (c *Client) Test() error {
	_, err := c.ListProjects()
	return err
}

// wrap converts a go-jira error into the taxonomy the rest of the
// system understands, with a human-readable diagnostic attached.
func (c *Client) wrap(op string, resp *jira.Response, err error) error {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	base := ErrUpstreamUnavailable
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		base = ErrAuthFailed
	}

	return fmt.Errorf("%w: %s: %s: %s", base, c.side, op, Describe(status, err))
}

// buildSinceJQL constructs the discovery query for one project mapping.
// Ordering oldest-first gives transfer logs a defensible audit order.
func buildSinceJQL(projectKey string, since *time.Time) string {
	if since == nil {
		return fmt.Sprintf("project = %q ORDER BY created ASC", projectKey)
	}
	return fmt.Sprintf("project = %q AND created >= %q ORDER BY created ASC",
		projectKey, since.UTC().Format("2006-01-02 15:04"))
}

// convertIssue maps a go-jira issue onto the internal model.
func convertIssue(issue jira.Issue) models.TrackerIssue {
	converted := models.TrackerIssue{Key: issue.Key}

	if issue.Fields == nil {
		return converted
	}

	converted.Summary = issue.Fields.Summary
	converted.Description = issue.Fields.Description
	converted.IssueType = issue.Fields.Type.Name
	converted.CreatedAt = time.Time(issue.Fields.Created)
	if issue.Fields.Priority != nil {
		converted.Priority = issue.Fields.Priority.Name
	}

	return converted
}
