// Package stackoverflow reads question activity from the StackExchange API.
package stackoverflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fiffu/repowatch/lib/fetcher"
)

type Owner struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type Comment struct {
	CommentID    int64  `json:"comment_id"`
	PostID       int64  `json:"post_id"`
	Owner        Owner  `json:"owner"`
	Body         string `json:"body"`
	Link         string `json:"link"`
	CreationDate int64  `json:"creation_date"`
}

func (c Comment) TrackingID() int64 { return c.CommentID }
func (c Comment) Revision() string  { return strconv.FormatInt(c.CreationDate, 10) }
func (c Comment) Created() time.Time {
	return time.Unix(c.CreationDate, 0).UTC()
}

type Answer struct {
	AnswerID         int64  `json:"answer_id"`
	QuestionID       int64  `json:"question_id"`
	Owner            Owner  `json:"owner"`
	Body             string `json:"body"`
	Score            int    `json:"score"`
	IsAccepted       bool   `json:"is_accepted"`
	CreationDate     int64  `json:"creation_date"`
	LastActivityDate int64  `json:"last_activity_date"`
}

func (a Answer) TrackingID() int64 { return a.AnswerID }
func (a Answer) Revision() string  { return strconv.FormatInt(a.LastActivityDate, 10) }
func (a Answer) Created() time.Time {
	return time.Unix(a.CreationDate, 0).UTC()
}

type page[T any] struct {
	Items          []T    `json:"items"`
	HasMore        bool   `json:"has_more"`
	QuotaRemaining int    `json:"quota_remaining"`
	ErrorID        int    `json:"error_id"`
	ErrorName      string `json:"error_name"`
	ErrorMessage   string `json:"error_message"`
}

// APIError is reported inside a 200 body by the StackExchange API.
type APIError struct {
	ID      int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stackexchange: %s (%d): %s", e.Name, e.ID, e.Message)
}

type Client struct {
	fetch   fetcher.Fetcher
	baseURL string
	site    string
	key     string
	filter  string
}

func NewClient(f fetcher.Fetcher, baseURL, site, key, filter string) *Client {
	return &Client{f, strings.TrimSuffix(baseURL, "/"), site, key, filter}
}

func (c *Client) QuestionComments(ctx context.Context, questionID int, since time.Time) ([]Comment, error) {
	return list[Comment](ctx, c, "comments", questionID, since)
}

func (c *Client) QuestionAnswers(ctx context.Context, questionID int, since time.Time) ([]Answer, error) {
	return list[Answer](ctx, c, "answers", questionID, since)
}

func list[T any](ctx context.Context, c *Client, collection string, questionID int, since time.Time) ([]T, error) {
	query := url.Values{
		"site":   {c.site},
		"order":  {"desc"},
		"sort":   {"creation"},
		"filter": {c.filter},
	}
	checkpoint := ""
	if !since.IsZero() {
		checkpoint = strconv.FormatInt(since.Unix(), 10)
		query.Set("fromdate", checkpoint)
	}
	if c.key != "" {
		query.Set("key", c.key)
	}

	target := fmt.Sprintf("%s/questions/%d/%s?%s", c.baseURL, questionID, collection, query.Encode())
	raw, err := c.fetch.Fetch(ctx, fetcher.Request{
		Operation:  "stackoverflow." + collection,
		Target:     target,
		Checkpoint: checkpoint,
	})
	if err != nil {
		return nil, err
	}

	var p page[T]
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("stackoverflow: decode %s: %w", collection, err)
	}
	if p.ErrorID != 0 {
		return nil, &APIError{p.ErrorID, p.ErrorName, p.ErrorMessage}
	}
	return p.Items, nil
}
