// Package processor runs the fetch-classify cycle for each kind of tracked
// resource.
package processor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fiffu/repowatch/lib/delta"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/stackoverflow"
	"github.com/fiffu/repowatch/lib/statecache"
	"golang.org/x/sync/errgroup"
)

const (
	collectionComments       = "comments"
	collectionReviewComments = "review_comments"
	collectionEvents         = "events"
	collectionCommits        = "commits"
	collectionRuns           = "runs"
	collectionAnswers        = "answers"
)

type GitHubAPI interface {
	Issue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error)
	IssueComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error)
	IssueEvents(ctx context.Context, token, owner, repo string, number int) ([]github.Event, error)
	Commit(ctx context.Context, token, owner, repo, sha string) (*github.Commit, error)
	CommitComments(ctx context.Context, token, owner, repo, sha string) ([]github.Comment, error)
	PullRequest(ctx context.Context, token, owner, repo string, number int) (*github.PullRequest, error)
	ReviewComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error)
	PullRequestCommits(ctx context.Context, token, owner, repo string, number int) ([]github.Commit, error)
	BranchCommits(ctx context.Context, token, owner, repo, branch string) ([]github.Commit, error)
	WorkflowRuns(ctx context.Context, token, owner, repo, workflowID string) ([]github.WorkflowRun, error)
}

type StackOverflowAPI interface {
	QuestionComments(ctx context.Context, questionID int, since time.Time) ([]stackoverflow.Comment, error)
	QuestionAnswers(ctx context.Context, questionID int, since time.Time) ([]stackoverflow.Answer, error)
}

// Processor holds no per-resource state of its own; everything it remembers
// lives in the state cache.
type Processor struct {
	gh    GitHubAPI
	so    StackOverflowAPI
	cache *statecache.Cache
	now   func() time.Time
}

func New(gh GitHubAPI, so StackOverflowAPI, cache *statecache.Cache) *Processor {
	return &Processor{gh, so, cache, time.Now}
}

func key(subscriberID uint, loc locator.Locator, collection string) statecache.Key {
	return statecache.Key{SubscriberID: subscriberID, Locator: loc, Collection: collection}
}

func (p *Processor) Issue(ctx context.Context, subscriberID uint, loc locator.Locator, token string) (*IssueResult, error) {
	number, err := loc.Number()
	if err != nil {
		return nil, err
	}

	var (
		issue    *github.Issue
		comments []github.Comment
		events   []github.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		issue, err = p.gh.Issue(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		comments, err = p.gh.IssueComments(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		events, err = p.gh.IssueEvents(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	commentsKey := key(subscriberID, loc, collectionComments)
	eventsKey := key(subscriberID, loc, collectionEvents)
	batch := p.cache.Batch(commentsKey, eventsKey)
	defer batch.Release()
	cache := batch.Cache()

	res := &IssueResult{Resource: Resource{loc, p.now()}, Issue: *issue}
	if res.Comments, err = delta.ClassifyMonotonic(ctx, cache, commentsKey, comments); err != nil {
		return nil, err
	}
	if res.Events, err = delta.ClassifyMonotonic(ctx, cache, eventsKey, events); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) Commit(ctx context.Context, subscriberID uint, loc locator.Locator, token string) (*CommitResult, error) {
	var (
		commit   *github.Commit
		comments []github.Comment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		commit, err = p.gh.Commit(gctx, token, loc.Owner, loc.Repo, loc.Discriminator)
		return
	})
	g.Go(func() (err error) {
		comments, err = p.gh.CommitComments(gctx, token, loc.Owner, loc.Repo, loc.Discriminator)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	var err error
	res := &CommitResult{Resource: Resource{loc, p.now()}, Commit: *commit}
	if res.Comments, err = delta.ClassifyMonotonic(ctx, p.cache, key(subscriberID, loc, collectionComments), comments); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) PullRequest(ctx context.Context, subscriberID uint, loc locator.Locator, token string) (*PullRequestResult, error) {
	number, err := loc.Number()
	if err != nil {
		return nil, err
	}

	var (
		pr             *github.PullRequest
		comments       []github.Comment
		reviewComments []github.Comment
		events         []github.Event
		commits        []github.Commit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pr, err = p.gh.PullRequest(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		comments, err = p.gh.IssueComments(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		reviewComments, err = p.gh.ReviewComments(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		events, err = p.gh.IssueEvents(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	g.Go(func() (err error) {
		commits, err = p.gh.PullRequestCommits(gctx, token, loc.Owner, loc.Repo, number)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	// Positional classification wants the newest commit first.
	slices.Reverse(commits)

	var (
		commentsKey       = key(subscriberID, loc, collectionComments)
		reviewCommentsKey = key(subscriberID, loc, collectionReviewComments)
		eventsKey         = key(subscriberID, loc, collectionEvents)
		commitsKey        = key(subscriberID, loc, collectionCommits)
	)
	batch := p.cache.Batch(commentsKey, reviewCommentsKey, eventsKey, commitsKey)
	defer batch.Release()
	cache := batch.Cache()

	res := &PullRequestResult{Resource: Resource{loc, p.now()}, PullRequest: *pr}
	if res.Comments, err = delta.ClassifyMonotonic(ctx, cache, commentsKey, comments); err != nil {
		return nil, err
	}
	if res.ReviewComments, err = delta.ClassifyMonotonic(ctx, cache, reviewCommentsKey, reviewComments); err != nil {
		return nil, err
	}
	if res.Events, err = delta.ClassifyMonotonic(ctx, cache, eventsKey, events); err != nil {
		return nil, err
	}
	if res.Commits, err = delta.ClassifyPositional(ctx, cache, commitsKey, commits); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) Branch(ctx context.Context, subscriberID uint, loc locator.Locator, token string) (*BranchResult, error) {
	commits, err := p.gh.BranchCommits(ctx, token, loc.Owner, loc.Repo, loc.Discriminator)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	res := &BranchResult{Resource: Resource{loc, p.now()}}
	if res.Commits, err = delta.ClassifyPositional(ctx, p.cache, key(subscriberID, loc, collectionCommits), commits); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) WorkflowRuns(ctx context.Context, subscriberID uint, loc locator.Locator, token string) (*WorkflowRunsResult, error) {
	runs, err := p.gh.WorkflowRuns(ctx, token, loc.Owner, loc.Repo, loc.Discriminator)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	res := &WorkflowRunsResult{Resource: Resource{loc, p.now()}}
	if res.Runs, err = delta.ClassifyMonotonic(ctx, p.cache, key(subscriberID, loc, collectionRuns), runs); err != nil {
		return nil, err
	}
	return res, nil
}

// QuestionComments only fetches comments created at or after since. The
// result checkpoint is the newest creation date fetched, or zero if nothing
// was returned.
func (p *Processor) QuestionComments(ctx context.Context, subscriberID uint, loc locator.Locator, since time.Time) (*QuestionCommentsResult, error) {
	id, err := loc.Number()
	if err != nil {
		return nil, err
	}

	comments, err := p.so.QuestionComments(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	res := &QuestionCommentsResult{Resource: Resource{Loc: loc}}
	for _, c := range comments {
		if c.Created().After(res.CheckedAt) {
			res.CheckedAt = c.Created()
		}
	}
	if res.Comments, err = delta.ClassifyMonotonic(ctx, p.cache, key(subscriberID, loc, collectionComments), comments); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) QuestionAnswers(ctx context.Context, subscriberID uint, loc locator.Locator, since time.Time) (*QuestionAnswersResult, error) {
	id, err := loc.Number()
	if err != nil {
		return nil, err
	}

	answers, err := p.so.QuestionAnswers(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	res := &QuestionAnswersResult{Resource: Resource{Loc: loc}}
	for _, a := range answers {
		if a.Created().After(res.CheckedAt) {
			res.CheckedAt = a.Created()
		}
	}
	if res.Answers, err = delta.ClassifyMonotonic(ctx, p.cache, key(subscriberID, loc, collectionAnswers), answers); err != nil {
		return nil, err
	}
	return res, nil
}
