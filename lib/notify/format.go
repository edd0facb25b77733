// Package notify renders processing results into notifications.
package notify

import (
	"fmt"
	"strings"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/processor"
	"github.com/fiffu/repowatch/lib/stackoverflow"
)

type Limits struct {
	CommentBody   int
	CommitMessage int
	CommitLine    int
	PostBody      int
	ListItems     int
}

func DefaultLimits() Limits {
	return Limits{
		CommentBody:   120,
		CommitMessage: 200,
		CommitLine:    80,
		PostBody:      500,
		ListItems:     5,
	}
}

// Formatter is pure: it performs no I/O and leaves notification IDs empty.
type Formatter struct {
	limits Limits
}

func NewFormatter() *Formatter {
	return &Formatter{DefaultLimits()}
}

func NewFormatterWithLimits(limits Limits) *Formatter {
	return &Formatter{limits}
}

func (f *Formatter) Format(subscriberID uint, res processor.Result) []models.Notification {
	if res == nil || !res.HasChanges() {
		return nil
	}

	switch r := res.(type) {
	case *processor.IssueResult:
		return f.one(subscriberID, "issue", f.issue(r))
	case *processor.CommitResult:
		return f.one(subscriberID, "commit", f.commit(r))
	case *processor.PullRequestResult:
		return f.one(subscriberID, "pull_request", f.pullRequest(r))
	case *processor.BranchResult:
		return f.one(subscriberID, "branch", f.branch(r))
	case *processor.WorkflowRunsResult:
		return f.one(subscriberID, "actions", f.workflowRuns(r))
	case *processor.QuestionCommentsResult:
		return f.questionComments(subscriberID, r)
	case *processor.QuestionAnswersResult:
		return f.questionAnswers(subscriberID, r)
	}
	return nil
}

// Reject tells the subscriber why their subscription cannot be processed.
func (f *Formatter) Reject(task dispatch.Task, err error) models.Notification {
	return models.Notification{
		SubscriberID: task.Subscriber(),
		Title:        "Subscription rejected",
		Body:         fmt.Sprintf("Cannot watch %s: %s", task.Target(), Truncate(err.Error(), f.limits.PostBody)),
		Service:      task.Service(),
		Type:         "rejected",
		URL:          task.Target(),
	}
}

type rendered struct {
	title string
	body  string
	url   string
}

func (f *Formatter) one(subscriberID uint, typ string, r rendered) []models.Notification {
	return []models.Notification{{
		SubscriberID: subscriberID,
		Title:        r.title,
		Body:         r.body,
		Service:      "github",
		Type:         typ,
		URL:          r.url,
	}}
}

func (f *Formatter) issue(r *processor.IssueResult) rendered {
	b := newBody(r.Loc)
	f.section(b, "New comments", f.commentLines(r.Comments.New))
	f.section(b, "Edited comments", f.commentLines(r.Comments.Updated))
	f.section(b, "New events", eventLines(r.Events.New))
	return rendered{
		title: fmt.Sprintf("Issue #%d: %s", r.Issue.Number, r.Issue.Title),
		body:  b.String(),
		url:   r.Issue.HTMLURL,
	}
}

func (f *Formatter) commit(r *processor.CommitResult) rendered {
	b := newBody(r.Loc)
	b.WriteString(Truncate(r.Commit.Commit.Message, f.limits.CommitMessage))
	b.WriteString("\n")
	f.section(b, "New comments", f.commentLines(r.Comments.New))
	f.section(b, "Edited comments", f.commentLines(r.Comments.Updated))
	return rendered{
		title: "Commit " + shortSHA(r.Loc.Discriminator),
		body:  b.String(),
		url:   r.Commit.HTMLURL,
	}
}

func (f *Formatter) pullRequest(r *processor.PullRequestResult) rendered {
	b := newBody(r.Loc)
	f.section(b, "New comments", f.commentLines(r.Comments.New))
	f.section(b, "Edited comments", f.commentLines(r.Comments.Updated))
	f.section(b, "New review comments", f.commentLines(r.ReviewComments.New))
	f.section(b, "Edited review comments", f.commentLines(r.ReviewComments.Updated))
	f.section(b, "New events", eventLines(r.Events.New))
	f.section(b, "New commits", f.commitLines(r.Commits.New))
	return rendered{
		title: fmt.Sprintf("PR #%d: %s", r.PullRequest.Number, r.PullRequest.Title),
		body:  b.String(),
		url:   r.PullRequest.HTMLURL,
	}
}

func (f *Formatter) branch(r *processor.BranchResult) rendered {
	b := newBody(r.Loc)
	f.section(b, "New commits", f.commitLines(r.Commits.New))
	return rendered{
		title: "Branch: " + r.Loc.Discriminator,
		body:  b.String(),
		url:   fmt.Sprintf("https://github.com/%s/%s/tree/%s", r.Loc.Owner, r.Loc.Repo, r.Loc.Discriminator),
	}
}

func (f *Formatter) workflowRuns(r *processor.WorkflowRunsResult) rendered {
	b := newBody(r.Loc)
	f.section(b, "New runs", runLines(r.Runs.New))
	f.section(b, "Updated runs", runLines(r.Runs.Updated))

	workflow := r.Loc.Discriminator
	url := fmt.Sprintf("https://github.com/%s/%s/actions", r.Loc.Owner, r.Loc.Repo)
	if workflow == "" {
		workflow = "all workflows"
	} else {
		url += "/workflows/" + workflow
	}
	return rendered{
		title: "GitHub Actions: " + workflow,
		body:  b.String(),
		url:   url,
	}
}

func (f *Formatter) questionComments(subscriberID uint, r *processor.QuestionCommentsResult) []models.Notification {
	out := make([]models.Notification, 0, len(r.Comments.New))
	for _, c := range r.Comments.New {
		url := c.Link
		if url == "" {
			url = questionURL(r.Loc)
		}
		out = append(out, f.post(subscriberID, "new_comment", "New comment on question #"+r.Loc.Discriminator, c.Owner, c.Body, url))
	}
	return out
}

func (f *Formatter) questionAnswers(subscriberID uint, r *processor.QuestionAnswersResult) []models.Notification {
	out := make([]models.Notification, 0, len(r.Answers.New))
	for _, a := range r.Answers.New {
		url := fmt.Sprintf("https://stackoverflow.com/a/%d", a.AnswerID)
		out = append(out, f.post(subscriberID, "new_answer", "New answer on question #"+r.Loc.Discriminator, a.Owner, a.Body, url))
	}
	return out
}

func (f *Formatter) post(subscriberID uint, typ, title string, owner stackoverflow.Owner, body, url string) models.Notification {
	return models.Notification{
		SubscriberID: subscriberID,
		Title:        title,
		Body:         fmt.Sprintf("%s: %s", owner.DisplayName, Truncate(PlainText(body), f.limits.PostBody)),
		Service:      "stackoverflow",
		Type:         typ,
		URL:          url,
	}
}

func newBody(loc locator.Locator) *strings.Builder {
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s/%s\n", loc.Owner, loc.Repo)
	return b
}

// section writes a heading with the total count followed by at most
// ListItems lines.
func (f *Formatter) section(b *strings.Builder, heading string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", heading, len(lines))
	for _, line := range capLines(lines, f.limits.ListItems) {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func capLines(lines []string, limit int) []string {
	if limit <= 0 || len(lines) <= limit {
		return lines
	}
	out := append([]string(nil), lines[:limit]...)
	return append(out, fmt.Sprintf("%s +%d more", ellipsis, len(lines)-limit))
}

func (f *Formatter) commentLines(comments []github.Comment) []string {
	lines := make([]string, len(comments))
	for i, c := range comments {
		who := c.User.Login
		if c.Path != "" {
			who += " on " + c.Path
		}
		lines[i] = fmt.Sprintf("• %s: %s", who, Truncate(compactWhitespace(c.Body), f.limits.CommentBody))
	}
	return lines
}

func eventLines(events []github.Event) []string {
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = fmt.Sprintf("• %s by %s", e.Event, e.Actor.Login)
	}
	return lines
}

func (f *Formatter) commitLines(commits []github.Commit) []string {
	lines := make([]string, len(commits))
	for i, c := range commits {
		lines[i] = fmt.Sprintf("• %s %s (%s)", shortSHA(c.SHA), Truncate(c.Headline(), f.limits.CommitLine), c.AuthorName())
	}
	return lines
}

func runLines(runs []github.WorkflowRun) []string {
	lines := make([]string, len(runs))
	for i, r := range runs {
		lines[i] = fmt.Sprintf("• #%d %s [%s/%s]", r.RunNumber, r.Name, r.Status, r.ConclusionOr("pending"))
	}
	return lines
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func questionURL(loc locator.Locator) string {
	return "https://stackoverflow.com/questions/" + loc.Discriminator
}
