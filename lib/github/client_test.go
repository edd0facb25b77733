package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fiffu/repowatch/lib/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, routes map[string]string) (*Client, *[]string) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RequestURI())
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	raw := fetcher.NewHTTPClient(http.DefaultTransport, time.Second, zap.NewNop())
	return NewClient(raw, srv.URL+"/"), &seen
}

func TestClient_BranchCommits(t *testing.T) {
	client, seen := newTestClient(t, map[string]string{
		"/repos/octo/hello/commits": `[
			{"sha":"c2","commit":{"message":"second\n\nbody","author":{"name":"Ann"}},"author":{"login":"ann"}},
			{"sha":"c1","commit":{"message":"first","author":{"name":"Bob"}},"author":null}
		]`,
	})

	commits, err := client.BranchCommits(context.Background(), "tok", "octo", "hello", "feature/x")
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "c2", commits[0].Ref())
	assert.Equal(t, "second", commits[0].Headline())
	assert.Equal(t, "ann", commits[0].AuthorName())
	assert.Equal(t, "Bob", commits[1].AuthorName())
	assert.Equal(t, []string{"/repos/octo/hello/commits?per_page=30&sha=feature%2Fx"}, *seen)
}

func TestClient_WorkflowRuns(t *testing.T) {
	client, seen := newTestClient(t, map[string]string{
		"/repos/octo/hello/actions/runs": `{"total_count":2,"workflow_runs":[
			{"id":11,"name":"CI","run_number":5,"status":"completed","conclusion":"success"},
			{"id":10,"name":"CI","run_number":4,"status":"in_progress","conclusion":null}
		]}`,
		"/repos/octo/hello/actions/workflows/ci.yml/runs": `{"total_count":0,"workflow_runs":[]}`,
	})
	ctx := context.Background()

	runs, err := client.WorkflowRuns(ctx, "tok", "octo", "hello", "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "completed:success", runs[0].Revision())
	assert.Equal(t, "in_progress:null", runs[1].Revision())

	runs, err = client.WorkflowRuns(ctx, "tok", "octo", "hello", "ci.yml")
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Len(t, *seen, 2)
}

func TestClient_IssueAndComments(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"/repos/octo/hello/issues/3":          `{"number":3,"title":"Crash","state":"open","html_url":"https://github.com/octo/hello/issues/3"}`,
		"/repos/octo/hello/issues/3/comments": `[{"id":100,"body":"hi","user":{"login":"ann"},"updated_at":"2024-01-02T03:04:05Z"}]`,
	})
	ctx := context.Background()

	issue, err := client.Issue(ctx, "tok", "octo", "hello", 3)
	require.NoError(t, err)
	assert.Equal(t, "Crash", issue.Title)

	comments, err := client.IssueComments(ctx, "tok", "octo", "hello", 3)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(100), comments[0].TrackingID())
	assert.Equal(t, "2024-01-02T03:04:05Z", comments[0].Revision())
}

func TestClient_NotFound(t *testing.T) {
	client, _ := newTestClient(t, nil)

	issue, err := client.Issue(context.Background(), "tok", "octo", "hello", 9)
	assert.Nil(t, issue)
	assert.True(t, fetcher.IsNotFound(err))
}

func TestClient_IssueCommentsFollowsPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		var items []string
		switch page {
		case "":
			for id := 1; id <= listPageSize; id++ {
				items = append(items, fmt.Sprintf(`{"id":%d}`, id))
			}
		case "2":
			items = []string{fmt.Sprintf(`{"id":%d}`, listPageSize+1)}
		}
		w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
	defer srv.Close()

	client := NewClient(fetcher.NewHTTPClient(http.DefaultTransport, time.Second, zap.NewNop()), srv.URL)
	comments, err := client.IssueComments(context.Background(), "tok", "octo", "hello", 3)
	require.NoError(t, err)
	require.Len(t, comments, listPageSize+1)
	assert.Equal(t, int64(listPageSize+1), comments[listPageSize].ID)
	assert.Equal(t, []string{"", "2"}, pages)
}
