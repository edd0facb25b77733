// Package locator turns tracked URLs into typed resource addresses.
package locator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	Issue
	Commit
	PullRequest
	Branch
	WorkflowRuns
	Question
)

var kindNames = map[Kind]string{
	Issue:        "issue",
	Commit:       "commit",
	PullRequest:  "pull_request",
	Branch:       "branch",
	WorkflowRuns: "github_actions",
	Question:     "question",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindFromMethod maps a GitHub subscription method name onto a resource kind.
func KindFromMethod(method string) (Kind, bool) {
	method = strings.ToLower(strings.TrimSpace(method))
	for kind, name := range kindNames {
		if kind != Question && name == method {
			return kind, true
		}
	}
	return KindUnknown, false
}

// AllWorkflows is the discriminator used in keys when no workflow is named.
const AllWorkflows = "all"

// StackOverflowSite is the owner recorded on question locators.
const StackOverflowSite = "stackoverflow"

type Locator struct {
	Owner         string
	Repo          string
	Kind          Kind
	Discriminator string
}

func (l Locator) String() string {
	if l.Kind == Question {
		return fmt.Sprintf("%s question %s", l.Owner, l.Discriminator)
	}
	if l.Discriminator == "" {
		return fmt.Sprintf("%s/%s %s", l.Owner, l.Repo, l.Kind)
	}
	return fmt.Sprintf("%s/%s %s %s", l.Owner, l.Repo, l.Kind, l.Discriminator)
}

// Path is the stable key fragment identifying the resource.
func (l Locator) Path() string {
	disc := l.Discriminator
	if disc == "" && l.Kind == WorkflowRuns {
		disc = AllWorkflows
	}
	return strings.Join([]string{l.Owner, l.Repo, l.Kind.String(), disc}, ":")
}

// Number returns the discriminator of an issue, pull request or question as an integer.
func (l Locator) Number() (int, error) {
	switch l.Kind {
	case Issue, PullRequest, Question:
		return strconv.Atoi(l.Discriminator)
	}
	return 0, fmt.Errorf("locator %s has no number", l)
}

type ParseError struct {
	Kind   Kind
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q as %s: %s", e.URL, e.Kind, e.Reason)
}

const githubPrefix = `^(?:https?://)?(?:www\.)?github\.com/([^/\s?#]+)/([^/\s?#]+)`

var (
	issueRE    = regexp.MustCompile(githubPrefix + `/issues/(\d+)(?:[/?#].*)?$`)
	commitRE   = regexp.MustCompile(githubPrefix + `/commit/([0-9a-fA-F]+)(?:[/?#].*)?$`)
	pullRE     = regexp.MustCompile(githubPrefix + `/pull/(\d+)(?:[/?#].*)?$`)
	branchRE   = regexp.MustCompile(githubPrefix + `/tree/([^?#]+)(?:[?#].*)?$`)
	workflowRE = regexp.MustCompile(githubPrefix + `/actions(?:/workflows/([^/?#\s]+))?/?(?:[?#].*)?$`)
	questionRE = regexp.MustCompile(`^(?:https?://)?(?:www\.)?stackoverflow\.com/questions/(\d+)(?:[/?#].*)?$`)
)

// Parse resolves url into a locator of the given kind. It never returns a
// partially filled locator.
func Parse(kind Kind, url string) (Locator, error) {
	url = strings.TrimSpace(url)
	fail := func(reason string) (Locator, error) {
		return Locator{}, &ParseError{Kind: kind, URL: url, Reason: reason}
	}

	var re *regexp.Regexp
	switch kind {
	case Issue:
		re = issueRE
	case Commit:
		re = commitRE
	case PullRequest:
		re = pullRE
	case Branch:
		re = branchRE
	case WorkflowRuns:
		re = workflowRE
	case Question:
		m := questionRE.FindStringSubmatch(url)
		if m == nil {
			return fail("not a stackoverflow question link")
		}
		if _, err := strconv.Atoi(m[1]); err != nil {
			return fail("number out of range")
		}
		return Locator{Owner: StackOverflowSite, Kind: Question, Discriminator: m[1]}, nil
	default:
		return fail("unsupported resource kind")
	}

	m := re.FindStringSubmatch(url)
	if m == nil {
		return fail("url does not match")
	}

	loc := Locator{Owner: m[1], Repo: strings.TrimSuffix(m[2], ".git"), Kind: kind}
	switch kind {
	case Commit:
		loc.Discriminator = strings.ToLower(m[3])
	case Branch:
		loc.Discriminator = strings.Trim(m[3], "/")
		if loc.Discriminator == "" {
			return fail("empty branch name")
		}
	case Issue, PullRequest:
		if _, err := strconv.Atoi(m[3]); err != nil {
			return fail("number out of range")
		}
		loc.Discriminator = m[3]
	default:
		loc.Discriminator = m[3]
	}
	return loc, nil
}
