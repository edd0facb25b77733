package lib

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/fetcher"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/notify"
	"github.com/fiffu/repowatch/lib/processor"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGitHub struct {
	processor.GitHubAPI

	mu       sync.Mutex
	comments []github.Comment
	err      error
}

func (g *fakeGitHub) Issue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error) {
	return &github.Issue{Number: number, Title: "Crash on start"}, nil
}

func (g *fakeGitHub) IssueComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.comments, g.err
}

func (g *fakeGitHub) IssueEvents(ctx context.Context, token, owner, repo string, number int) ([]github.Event, error) {
	return nil, nil
}

func (g *fakeGitHub) setComments(comments ...github.Comment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.comments = comments
}

type fakeCreds map[uint]dispatch.Credential

func (f fakeCreds) ResolveCredential(ctx context.Context, tokenID uint) (*dispatch.Credential, error) {
	c, ok := f[tokenID]
	if !ok {
		return nil, dispatch.ErrUnknownCredential
	}
	return &c, nil
}

type recordingPublisher struct {
	fail      bool
	attempted []models.Notification
}

func (p *recordingPublisher) Publish(ctx context.Context, n *models.Notification) error {
	p.attempted = append(p.attempted, *n)
	if p.fail {
		return errors.New("smtp is down")
	}
	return nil
}

type recordingCheckpoints map[uint]time.Time

func (c recordingCheckpoints) UpdateCheckpoint(ctx context.Context, subscriptionID uint, at time.Time) error {
	c[subscriptionID] = at
	return nil
}

type harness struct {
	gh          *fakeGitHub
	publisher   *recordingPublisher
	checkpoints recordingCheckpoints
	handler     *taskHandler
}

func newHarness() *harness {
	gh := &fakeGitHub{}
	cache := statecache.New(statecache.NewMemoryBackend(), time.Hour)
	proc := processor.New(gh, nil, cache)
	d := dispatch.New(fakeCreds{9: {Value: "ghp_x", OwnerID: 5}}, proc)

	h := &harness{gh: gh, publisher: &recordingPublisher{}, checkpoints: recordingCheckpoints{}}
	h.handler = &taskHandler{zap.NewNop(), d, notify.NewFormatter(), h.publisher, h.checkpoints}
	return h
}

func issueTask(tokenID uint) router.Routed {
	return router.Routed{
		Topic: router.TopicGitHub,
		Task: dispatch.GitHubTask{
			SubscriptionID: 1,
			SubscriberID:   5,
			Kind:           locator.Issue,
			Query:          "https://github.com/octo/hello/issues/3",
			TokenID:        tokenID,
		},
	}
}

func comment(id int64) github.Comment {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return github.Comment{ID: id, Body: "hi", User: github.User{Login: "ann"}, CreatedAt: at, UpdatedAt: at}
}

func TestHandleTask_ColdStartThenNotify(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.gh.setComments(comment(100))
	outcome, err := h.handler.HandleTask(ctx, issueTask(9))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Empty(t, h.publisher.attempted, "first observation only seeds state")
	assert.Contains(t, h.checkpoints, uint(1))

	h.gh.setComments(comment(100), comment(101))
	outcome, err = h.handler.HandleTask(ctx, issueTask(9))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, outcome)
	require.Len(t, h.publisher.attempted, 1)
	assert.Equal(t, uint(5), h.publisher.attempted[0].SubscriberID)
	assert.Contains(t, h.publisher.attempted[0].Body, "New comments (1):")
}

// A failed publish is not retried. The items were already recorded as seen
// before publishing, so the next run finds nothing new and the notification
// is lost.
func TestHandleTask_PublishFailureLosesNotification(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.gh.setComments(comment(100))
	_, err := h.handler.HandleTask(ctx, issueTask(9))
	require.NoError(t, err)

	h.publisher.fail = true
	h.gh.setComments(comment(100), comment(101))
	outcome, err := h.handler.HandleTask(ctx, issueTask(9))
	require.NoError(t, err, "publish failures are logged, not returned")
	assert.Equal(t, OutcomeNotified, outcome)
	require.Len(t, h.publisher.attempted, 1)

	h.publisher.fail = false
	outcome, err = h.handler.HandleTask(ctx, issueTask(9))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Len(t, h.publisher.attempted, 1, "comment 101 is never re-sent")
}

func TestHandleTask_RejectionIsPublished(t *testing.T) {
	h := newHarness()

	outcome, err := h.handler.HandleTask(context.Background(), issueTask(0))
	assert.Equal(t, OutcomeRejected, outcome)
	assert.ErrorIs(t, err, dispatch.ErrMissingCredential)

	require.Len(t, h.publisher.attempted, 1)
	assert.Equal(t, "rejected", h.publisher.attempted[0].Type)
	assert.Empty(t, h.checkpoints)
}

func TestHandleTask_RemoteFailureLeavesCheckpoint(t *testing.T) {
	h := newHarness()
	h.gh.err = &fetcher.StatusError{StatusCode: http.StatusBadGateway, URL: "https://api.github.com"}

	outcome, err := h.handler.HandleTask(context.Background(), issueTask(9))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, dispatch.IsRetryable(err))
	assert.Empty(t, h.publisher.attempted)
	assert.Empty(t, h.checkpoints)
}
