package dispatch

import (
	"time"

	"github.com/fiffu/repowatch/lib/locator"
)

// Task is one unit of work: check a single subscription once.
type Task interface {
	Subscription() uint
	Subscriber() uint
	Target() string
	Service() string
}

type GitHubTask struct {
	SubscriptionID uint
	SubscriberID   uint
	Kind           locator.Kind
	Query          string
	TokenID        uint // zero when the subscription carries no token
}

func (t GitHubTask) Subscription() uint { return t.SubscriptionID }
func (t GitHubTask) Subscriber() uint   { return t.SubscriberID }
func (t GitHubTask) Target() string     { return t.Query }
func (t GitHubTask) Service() string    { return "github" }

type StackOverflowMethod string

const (
	NewComment StackOverflowMethod = "new_comment"
	NewAnswer  StackOverflowMethod = "new_answer"
)

type StackOverflowTask struct {
	SubscriptionID uint
	SubscriberID   uint
	Link           string
	Since          time.Time
	Method         StackOverflowMethod
}

func (t StackOverflowTask) Subscription() uint { return t.SubscriptionID }
func (t StackOverflowTask) Subscriber() uint   { return t.SubscriberID }
func (t StackOverflowTask) Target() string     { return t.Link }
func (t StackOverflowTask) Service() string    { return "stackoverflow" }
