package github

import (
	"strings"
	"time"
)

type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	Path      string    `json:"path,omitempty"` // review comments only
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Comment) TrackingID() int64 { return c.ID }
func (c Comment) Revision() string  { return c.UpdatedAt.UTC().Format(time.RFC3339) }

type Event struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	Actor     User      `json:"actor"`
	CommitID  string    `json:"commit_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Event) TrackingID() int64 { return e.ID }
func (e Event) Revision() string  { return e.CreatedAt.UTC().Format(time.RFC3339) }

type Commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *User `json:"author"`
}

func (c Commit) Ref() string { return c.SHA }

// AuthorName prefers the GitHub login over the git author name.
func (c Commit) AuthorName() string {
	if c.Author != nil && c.Author.Login != "" {
		return c.Author.Login
	}
	return c.Commit.Author.Name
}

// Headline is the first line of the commit message.
func (c Commit) Headline() string {
	line, _, _ := strings.Cut(c.Commit.Message, "\n")
	return line
}

type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RunNumber  int       `json:"run_number"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Conclusion *string   `json:"conclusion"`
	HeadBranch string    `json:"head_branch"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r WorkflowRun) TrackingID() int64 { return r.ID }

// Revision changes whenever a run moves between states or finishes.
func (r WorkflowRun) Revision() string {
	return r.Status + ":" + r.ConclusionOr("null")
}

func (r WorkflowRun) ConclusionOr(fallback string) string {
	if r.Conclusion == nil {
		return fallback
	}
	return *r.Conclusion
}

type workflowRunsPage struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}
