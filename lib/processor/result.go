package processor

import (
	"time"

	"github.com/fiffu/repowatch/lib/delta"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/stackoverflow"
)

// Result is the outcome of one fetch-classify cycle for one resource.
type Result interface {
	Locator() locator.Locator
	HasChanges() bool
	// Checkpoint is the time to record against the subscription, zero to
	// leave it untouched.
	Checkpoint() time.Time
}

type Resource struct {
	Loc       locator.Locator
	CheckedAt time.Time
}

func (b Resource) Locator() locator.Locator { return b.Loc }
func (b Resource) Checkpoint() time.Time    { return b.CheckedAt }

type IssueResult struct {
	Resource
	Issue    github.Issue
	Comments delta.Delta[github.Comment]
	Events   delta.Delta[github.Event]
}

func (r *IssueResult) HasChanges() bool {
	return !r.Comments.Empty() || !r.Events.Empty()
}

type CommitResult struct {
	Resource
	Commit   github.Commit
	Comments delta.Delta[github.Comment]
}

func (r *CommitResult) HasChanges() bool {
	return !r.Comments.Empty()
}

type PullRequestResult struct {
	Resource
	PullRequest    github.PullRequest
	Comments       delta.Delta[github.Comment]
	ReviewComments delta.Delta[github.Comment]
	Events         delta.Delta[github.Event]
	Commits        delta.Delta[github.Commit]
}

func (r *PullRequestResult) HasChanges() bool {
	return !r.Comments.Empty() || !r.ReviewComments.Empty() || !r.Events.Empty() || !r.Commits.Empty()
}

type BranchResult struct {
	Resource
	Commits delta.Delta[github.Commit]
}

func (r *BranchResult) HasChanges() bool {
	return !r.Commits.Empty()
}

type WorkflowRunsResult struct {
	Resource
	Runs delta.Delta[github.WorkflowRun]
}

func (r *WorkflowRunsResult) HasChanges() bool {
	return !r.Runs.Empty()
}

type QuestionCommentsResult struct {
	Resource
	Comments delta.Delta[stackoverflow.Comment]
}

// HasChanges ignores edits. Only new comments are notified.
func (r *QuestionCommentsResult) HasChanges() bool {
	return len(r.Comments.New) > 0
}

type QuestionAnswersResult struct {
	Resource
	Answers delta.Delta[stackoverflow.Answer]
}

// HasChanges ignores updated answers. Votes and edits bump the activity
// date, but only new answers are notified.
func (r *QuestionAnswersResult) HasChanges() bool {
	return len(r.Answers.New) > 0
}
