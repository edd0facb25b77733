package processor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/stackoverflow"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves whatever its fields hold at call time.
type fakeGitHub struct {
	calls     atomic.Int32
	issue     github.Issue
	comments  []github.Comment
	reviews   []github.Comment
	events    []github.Event
	commits   []github.Commit
	runs      []github.WorkflowRun
	eventsErr error
}

func (f *fakeGitHub) Issue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error) {
	f.calls.Add(1)
	issue := f.issue
	return &issue, nil
}

func (f *fakeGitHub) IssueComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error) {
	f.calls.Add(1)
	return f.comments, nil
}

func (f *fakeGitHub) IssueEvents(ctx context.Context, token, owner, repo string, number int) ([]github.Event, error) {
	f.calls.Add(1)
	return f.events, f.eventsErr
}

func (f *fakeGitHub) Commit(ctx context.Context, token, owner, repo, sha string) (*github.Commit, error) {
	f.calls.Add(1)
	return &github.Commit{SHA: sha}, nil
}

func (f *fakeGitHub) CommitComments(ctx context.Context, token, owner, repo, sha string) ([]github.Comment, error) {
	f.calls.Add(1)
	return f.comments, nil
}

func (f *fakeGitHub) PullRequest(ctx context.Context, token, owner, repo string, number int) (*github.PullRequest, error) {
	f.calls.Add(1)
	return &github.PullRequest{Number: number, Title: "Add feature"}, nil
}

func (f *fakeGitHub) ReviewComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error) {
	f.calls.Add(1)
	return f.reviews, nil
}

func (f *fakeGitHub) PullRequestCommits(ctx context.Context, token, owner, repo string, number int) ([]github.Commit, error) {
	f.calls.Add(1)
	return append([]github.Commit(nil), f.commits...), nil
}

func (f *fakeGitHub) BranchCommits(ctx context.Context, token, owner, repo, branch string) ([]github.Commit, error) {
	f.calls.Add(1)
	return f.commits, nil
}

func (f *fakeGitHub) WorkflowRuns(ctx context.Context, token, owner, repo, workflowID string) ([]github.WorkflowRun, error) {
	f.calls.Add(1)
	return f.runs, nil
}

type fakeStackOverflow struct {
	since   time.Time
	answers []stackoverflow.Answer
}

func (f *fakeStackOverflow) QuestionComments(ctx context.Context, questionID int, since time.Time) ([]stackoverflow.Comment, error) {
	return nil, nil
}

func (f *fakeStackOverflow) QuestionAnswers(ctx context.Context, questionID int, since time.Time) ([]stackoverflow.Answer, error) {
	f.since = since
	return f.answers, nil
}

func comment(id int64, updated string) github.Comment {
	ts, _ := time.Parse(time.RFC3339, updated)
	return github.Comment{ID: id, Body: "body", UpdatedAt: ts}
}

func commit(sha string) github.Commit {
	return github.Commit{SHA: sha}
}

func newProcessor(gh *fakeGitHub, so *fakeStackOverflow) (*Processor, *statecache.Cache) {
	cache := statecache.New(statecache.NewMemoryBackend(), time.Hour)
	return New(gh, so, cache), cache
}

var issueLoc = locator.Locator{Owner: "octo", Repo: "hello", Kind: locator.Issue, Discriminator: "3"}

func TestIssue_ColdStartThenNewComment(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{
		comments: []github.Comment{comment(100, "2024-01-01T00:00:00Z")},
		events:   []github.Event{{ID: 1, Event: "labeled"}},
	}
	p, _ := newProcessor(gh, nil)

	res, err := p.Issue(ctx, 1, issueLoc, "tok")
	require.NoError(t, err)
	assert.False(t, res.HasChanges(), "first poll only seeds cursors")

	gh.comments = append(gh.comments, comment(101, "2024-01-02T00:00:00Z"))
	res, err = p.Issue(ctx, 1, issueLoc, "tok")
	require.NoError(t, err)
	assert.True(t, res.HasChanges())
	require.Len(t, res.Comments.New, 1)
	assert.Equal(t, int64(101), res.Comments.New[0].ID)
	assert.True(t, res.Events.Empty())
}

func TestIssue_FetchFailureLeavesCursorsUntouched(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{
		comments:  []github.Comment{comment(100, "2024-01-01T00:00:00Z")},
		eventsErr: errors.New("502 bad gateway"),
	}
	p, cache := newProcessor(gh, nil)

	_, err := p.Issue(ctx, 1, issueLoc, "tok")
	require.Error(t, err)

	_, ok, err := cache.MaxSeenID(ctx, key(1, issueLoc, collectionComments))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssue_SubscribersHaveIndependentCursors(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{comments: []github.Comment{comment(100, "2024-01-01T00:00:00Z")}}
	p, _ := newProcessor(gh, nil)

	_, err := p.Issue(ctx, 1, issueLoc, "tok")
	require.NoError(t, err)

	gh.comments = append(gh.comments, comment(101, "2024-01-02T00:00:00Z"))
	res, err := p.Issue(ctx, 2, issueLoc, "tok")
	require.NoError(t, err)
	assert.False(t, res.HasChanges(), "subscriber 2 is cold")
}

func TestPullRequest_CommitsAreNewestFirst(t *testing.T) {
	ctx := context.Background()
	loc := locator.Locator{Owner: "octo", Repo: "hello", Kind: locator.PullRequest, Discriminator: "7"}
	gh := &fakeGitHub{commits: []github.Commit{commit("c1"), commit("c2")}}
	p, _ := newProcessor(gh, nil)

	res, err := p.PullRequest(ctx, 1, loc, "tok")
	require.NoError(t, err)
	assert.False(t, res.HasChanges())

	gh.commits = append(gh.commits, commit("c3"), commit("c4"))
	gh.reviews = []github.Comment{comment(9, "2024-01-01T00:00:00Z")}
	res, err = p.PullRequest(ctx, 1, loc, "tok")
	require.NoError(t, err)
	assert.Equal(t, []github.Commit{commit("c4"), commit("c3")}, res.Commits.New)
	assert.Len(t, res.ReviewComments.New, 1, "review comments were seeded empty")
	assert.Equal(t, "Add feature", res.PullRequest.Title)
}

func TestBranch_Boundary(t *testing.T) {
	ctx := context.Background()
	loc := locator.Locator{Owner: "octo", Repo: "hello", Kind: locator.Branch, Discriminator: "main"}
	gh := &fakeGitHub{commits: []github.Commit{commit("abc123"), commit("c4")}}
	p, _ := newProcessor(gh, nil)

	_, err := p.Branch(ctx, 1, loc, "tok")
	require.NoError(t, err)

	gh.commits = []github.Commit{commit("c1"), commit("c2"), commit("abc123"), commit("c4")}
	res, err := p.Branch(ctx, 1, loc, "tok")
	require.NoError(t, err)
	assert.Equal(t, []github.Commit{commit("c1"), commit("c2")}, res.Commits.New)
}

func TestWorkflowRuns_StatusTransitionIsAnUpdate(t *testing.T) {
	ctx := context.Background()
	loc := locator.Locator{Owner: "octo", Repo: "hello", Kind: locator.WorkflowRuns}
	gh := &fakeGitHub{runs: []github.WorkflowRun{{ID: 10, Status: "in_progress"}}}
	p, _ := newProcessor(gh, nil)

	_, err := p.WorkflowRuns(ctx, 1, loc, "tok")
	require.NoError(t, err)

	success := "success"
	gh.runs = []github.WorkflowRun{{ID: 10, Status: "completed", Conclusion: &success}}
	res, err := p.WorkflowRuns(ctx, 1, loc, "tok")
	require.NoError(t, err)
	assert.Empty(t, res.Runs.New)
	require.Len(t, res.Runs.Updated, 1)
	assert.Equal(t, "completed:success", res.Runs.Updated[0].Revision())
}

func TestQuestionAnswers_Checkpoint(t *testing.T) {
	ctx := context.Background()
	loc := locator.Locator{Owner: locator.StackOverflowSite, Kind: locator.Question, Discriminator: "42"}
	so := &fakeStackOverflow{}
	p, _ := newProcessor(&fakeGitHub{}, so)
	since := time.Unix(1690000000, 0)

	res, err := p.QuestionAnswers(ctx, 1, loc, since)
	require.NoError(t, err)
	assert.False(t, res.HasChanges())
	assert.True(t, res.Checkpoint().IsZero(), "nothing fetched, nothing to record")
	assert.Equal(t, since, so.since)

	so.answers = []stackoverflow.Answer{
		{AnswerID: 8, CreationDate: 1700000100, LastActivityDate: 1700000100},
		{AnswerID: 7, CreationDate: 1700000000, LastActivityDate: 1700000000},
	}
	res, err = p.QuestionAnswers(ctx, 1, loc, since)
	require.NoError(t, err)
	assert.Len(t, res.Answers.New, 2)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), res.Checkpoint())
}

func TestQuestionAnswers_ActivityOnKnownAnswerIsNotAChange(t *testing.T) {
	ctx := context.Background()
	loc := locator.Locator{Owner: locator.StackOverflowSite, Kind: locator.Question, Discriminator: "42"}
	so := &fakeStackOverflow{answers: []stackoverflow.Answer{
		{AnswerID: 7, CreationDate: 1700000000, LastActivityDate: 1700000000},
	}}
	p, _ := newProcessor(&fakeGitHub{}, so)

	_, err := p.QuestionAnswers(ctx, 1, loc, time.Time{})
	require.NoError(t, err)

	so.answers[0].LastActivityDate = 1700000500
	res, err := p.QuestionAnswers(ctx, 1, loc, time.Time{})
	require.NoError(t, err)
	assert.Len(t, res.Answers.Updated, 1)
	assert.False(t, res.HasChanges(), "an upvote or edit is not notified")
}

// flakyBackend fails reads of keys containing failOn while it is set.
type flakyBackend struct {
	*statecache.MemoryBackend
	failOn string
}

func (b *flakyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.failOn != "" && strings.Contains(key, b.failOn) {
		return "", false, errors.New("database is locked")
	}
	return b.MemoryBackend.Get(ctx, key)
}

func TestIssue_CacheFailureLeavesEveryCursorUntouched(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{comments: []github.Comment{comment(100, "2024-01-01T00:00:00Z")}}
	backend := &flakyBackend{MemoryBackend: statecache.NewMemoryBackend()}
	p := New(gh, nil, statecache.New(backend, time.Hour))

	_, err := p.Issue(ctx, 1, issueLoc, "tok")
	require.NoError(t, err)

	gh.comments = append(gh.comments, comment(101, "2024-01-02T00:00:00Z"))
	backend.failOn = collectionEvents + ":cursor"
	_, err = p.Issue(ctx, 1, issueLoc, "tok")
	require.Error(t, err)

	backend.failOn = ""
	res, err := p.Issue(ctx, 1, issueLoc, "tok")
	require.NoError(t, err)
	require.Len(t, res.Comments.New, 1, "comments classified before the failure are reported on the retry")
	assert.Equal(t, int64(101), res.Comments.New[0].ID)
}
