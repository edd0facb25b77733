// Package github is a read-only client for the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/fiffu/repowatch/lib/fetcher"
)

const pageSize = 30

// Oldest-first lists are read page by page up to maxListPages, so threads
// longer than listPageSize*maxListPages stop showing new entries.
const (
	listPageSize = 100
	maxListPages = 10
)

type Client struct {
	fetch   fetcher.Fetcher
	baseURL string
}

func NewClient(f fetcher.Fetcher, baseURL string) *Client {
	return &Client{fetch: f, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) AuthenticatedUser(ctx context.Context, token string) (*User, error) {
	return getOne[User](ctx, c, "user", token, "/user", nil)
}

func (c *Client) Issue(ctx context.Context, token, owner, repo string, number int) (*Issue, error) {
	return getOne[Issue](ctx, c, "issue", token, repoPath(owner, repo, "issues", strconv.Itoa(number)), nil)
}

func (c *Client) IssueComments(ctx context.Context, token, owner, repo string, number int) ([]Comment, error) {
	path := repoPath(owner, repo, "issues", strconv.Itoa(number), "comments")
	return getAll[Comment](ctx, c, "issue_comments", token, path)
}

func (c *Client) IssueEvents(ctx context.Context, token, owner, repo string, number int) ([]Event, error) {
	path := repoPath(owner, repo, "issues", strconv.Itoa(number), "events")
	return getAll[Event](ctx, c, "issue_events", token, path)
}

func (c *Client) Commit(ctx context.Context, token, owner, repo, sha string) (*Commit, error) {
	return getOne[Commit](ctx, c, "commit", token, repoPath(owner, repo, "commits", sha), nil)
}

func (c *Client) CommitComments(ctx context.Context, token, owner, repo, sha string) ([]Comment, error) {
	path := repoPath(owner, repo, "commits", sha, "comments")
	return getAll[Comment](ctx, c, "commit_comments", token, path)
}

func (c *Client) PullRequest(ctx context.Context, token, owner, repo string, number int) (*PullRequest, error) {
	return getOne[PullRequest](ctx, c, "pull_request", token, repoPath(owner, repo, "pulls", strconv.Itoa(number)), nil)
}

func (c *Client) ReviewComments(ctx context.Context, token, owner, repo string, number int) ([]Comment, error) {
	path := repoPath(owner, repo, "pulls", strconv.Itoa(number), "comments")
	return getAll[Comment](ctx, c, "review_comments", token, path)
}

// PullRequestCommits lists commits oldest first, as GitHub returns them.
func (c *Client) PullRequestCommits(ctx context.Context, token, owner, repo string, number int) ([]Commit, error) {
	path := repoPath(owner, repo, "pulls", strconv.Itoa(number), "commits")
	return getAll[Commit](ctx, c, "pull_request_commits", token, path)
}

// BranchCommits lists the newest commits reachable from branch, newest first.
func (c *Client) BranchCommits(ctx context.Context, token, owner, repo, branch string) ([]Commit, error) {
	query := perPage(pageSize)
	query.Set("sha", branch)
	return getList[Commit](ctx, c, "branch_commits", token, repoPath(owner, repo, "commits"), query)
}

// WorkflowRuns lists recent runs of one workflow, or of every workflow in
// the repository when workflowID is empty.
func (c *Client) WorkflowRuns(ctx context.Context, token, owner, repo, workflowID string) ([]WorkflowRun, error) {
	path := repoPath(owner, repo, "actions", "runs")
	if workflowID != "" {
		path = repoPath(owner, repo, "actions", "workflows", workflowID, "runs")
	}

	var page workflowRunsPage
	if err := c.get(ctx, "workflow_runs", token, path, perPage(pageSize), &page); err != nil {
		return nil, err
	}
	return page.WorkflowRuns, nil
}

func (c *Client) get(ctx context.Context, op, token, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	raw, err := c.fetch.Fetch(ctx, fetcher.Request{Operation: "github." + op, Target: target, Credential: token})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("github: decode %s: %w", op, err)
	}
	return nil
}

func getOne[T any](ctx context.Context, c *Client, op, token, path string, query url.Values) (*T, error) {
	var out T
	if err := c.get(ctx, op, token, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func getList[T any](ctx context.Context, c *Client, op, token, path string, query url.Values) ([]T, error) {
	var out []T
	if err := c.get(ctx, op, token, path, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getAll follows page numbers until a short page comes back.
func getAll[T any](ctx context.Context, c *Client, op, token, path string) ([]T, error) {
	var out []T
	for page := 1; page <= maxListPages; page++ {
		query := perPage(listPageSize)
		if page > 1 {
			query.Set("page", strconv.Itoa(page))
		}
		items, err := getList[T](ctx, c, op, token, path, query)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < listPageSize {
			break
		}
	}
	return out, nil
}

func repoPath(owner, repo string, segments ...string) string {
	parts := []string{"", "repos", url.PathEscape(owner), url.PathEscape(repo)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

func perPage(n int) url.Values {
	return url.Values{"per_page": {strconv.Itoa(n)}}
}
