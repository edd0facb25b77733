// Package dispatch validates tasks and hands them to the matching processor.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/processor"
)

type FailureKind int

const (
	FailureValidation FailureKind = iota + 1
	FailureParse
	FailureRemote
)

func (k FailureKind) String() string {
	switch k {
	case FailureValidation:
		return "validation"
	case FailureParse:
		return "parse"
	case FailureRemote:
		return "remote"
	}
	return "unknown"
}

type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsRetryable is true only for remote failures; the others fail the same
// way every time.
func IsRetryable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureRemote
}

var (
	ErrMissingCredential  = errors.New("a token is required for this subscription")
	ErrUnknownCredential  = errors.New("token not found")
	ErrCredentialNotOwned = errors.New("token belongs to another user")
)

type Credential struct {
	Value   string
	OwnerID uint
}

type CredentialResolver interface {
	// ResolveCredential returns ErrUnknownCredential when no token has the id.
	ResolveCredential(ctx context.Context, tokenID uint) (*Credential, error)
}

type Dispatcher struct {
	creds CredentialResolver
	proc  *processor.Processor
}

func New(creds CredentialResolver, proc *processor.Processor) *Dispatcher {
	return &Dispatcher{creds, proc}
}

func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (processor.Result, error) {
	switch t := task.(type) {
	case GitHubTask:
		return d.dispatchGitHub(ctx, t)
	case StackOverflowTask:
		return d.dispatchStackOverflow(ctx, t)
	default:
		return nil, &Failure{FailureValidation, fmt.Errorf("unsupported task %T", task)}
	}
}

func (d *Dispatcher) dispatchGitHub(ctx context.Context, t GitHubTask) (processor.Result, error) {
	if t.TokenID == 0 {
		return nil, &Failure{FailureValidation, ErrMissingCredential}
	}

	cred, err := d.creds.ResolveCredential(ctx, t.TokenID)
	switch {
	case errors.Is(err, ErrUnknownCredential):
		return nil, &Failure{FailureValidation, err}
	case err != nil:
		return nil, &Failure{FailureRemote, fmt.Errorf("resolve token: %w", err)}
	case strings.TrimSpace(cred.Value) == "":
		return nil, &Failure{FailureValidation, ErrMissingCredential}
	case cred.OwnerID != t.SubscriberID:
		return nil, &Failure{FailureValidation, ErrCredentialNotOwned}
	}

	loc, err := locator.Parse(t.Kind, t.Query)
	if err != nil {
		return nil, &Failure{FailureParse, err}
	}

	var res processor.Result
	switch loc.Kind {
	case locator.Issue:
		res, err = d.proc.Issue(ctx, t.SubscriberID, loc, cred.Value)
	case locator.Commit:
		res, err = d.proc.Commit(ctx, t.SubscriberID, loc, cred.Value)
	case locator.PullRequest:
		res, err = d.proc.PullRequest(ctx, t.SubscriberID, loc, cred.Value)
	case locator.Branch:
		res, err = d.proc.Branch(ctx, t.SubscriberID, loc, cred.Value)
	case locator.WorkflowRuns:
		res, err = d.proc.WorkflowRuns(ctx, t.SubscriberID, loc, cred.Value)
	default:
		return nil, &Failure{FailureValidation, fmt.Errorf("unsupported kind %s", loc.Kind)}
	}
	if err != nil {
		return nil, &Failure{FailureRemote, err}
	}
	return res, nil
}

func (d *Dispatcher) dispatchStackOverflow(ctx context.Context, t StackOverflowTask) (processor.Result, error) {
	loc, err := locator.Parse(locator.Question, t.Link)
	if err != nil {
		return nil, &Failure{FailureParse, err}
	}

	var res processor.Result
	switch t.Method {
	case NewComment:
		res, err = d.proc.QuestionComments(ctx, t.SubscriberID, loc, t.Since)
	case NewAnswer:
		res, err = d.proc.QuestionAnswers(ctx, t.SubscriberID, loc, t.Since)
	default:
		return nil, &Failure{FailureValidation, fmt.Errorf("unsupported method %q", t.Method)}
	}
	if err != nil {
		return nil, &Failure{FailureRemote, err}
	}
	return res, nil
}
