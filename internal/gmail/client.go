package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
)

const (
	user              = "me"
	defaultMaxResults = 100
	defaultWorkers    = 10
	maxWorkers        = 15
)

// Client wraps the gmail.Service with context aware convenience methods
type Client struct {
	Service *gmail.Service

	requestTimeout time.Duration
	logger         *log.Logger

	mu           sync.Mutex
	profileEmail string
}

// NewClient creates a new Gmail client
func NewClient(service *gmail.Service) *Client {
	return &Client{Service: service}
}

// SetLogger sets the logger for debug output
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetRequestTimeout bounds every single API call. Zero disables the bound.
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.requestTimeout = d
}

func (c *Client) ready() error {
	if c == nil || c.Service == nil {
		return fmt.Errorf("gmail client not initialized")
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// ActiveAccountEmail returns the address of the authenticated account
func (c *Client) ActiveAccountEmail(ctx context.Context) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	c.mu.Lock()
	cached := c.profileEmail
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	profile, err := c.Profile(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.profileEmail = profile.EmailAddress
	c.mu.Unlock()
	return profile.EmailAddress, nil
}

// Profile returns the account profile, including the current history id
func (c *Client) Profile(ctx context.Context) (*gmail.Profile, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	profile, err := c.Service.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", classify(err))
	}
	return profile, nil
}

// Query selects a page of message ids
type Query struct {
	Q                string
	LabelIDs         []string
	IncludeSpamTrash bool
	MaxResults       int64
}

// ListMessageIDs returns the ids of the messages matching q, newest first
func (c *Client) ListMessageIDs(ctx context.Context, q Query) ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	var ids []string
	pageToken := ""
	for int64(len(ids)) < limit {
		call := c.Service.Users.Messages.List(user).MaxResults(limit - int64(len(ids)))
		if q.Q != "" {
			call = call.Q(q.Q)
		}
		if len(q.LabelIDs) > 0 {
			call = call.LabelIds(q.LabelIDs...)
		}
		if q.IncludeSpamTrash {
			call = call.IncludeSpamTrash(true)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		rctx, cancel := c.withTimeout(ctx)
		res, err := call.Context(rctx).Do()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", classify(err))
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		if res.NextPageToken == "" || len(res.Messages) == 0 {
			break
		}
		pageToken = res.NextPageToken
	}
	return ids, nil
}

// GetMessage retrieves a message in full format
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msg, err := c.Service.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, classify(err))
	}
	return msg, nil
}

// GetMessagesParallel fetches ids with a bounded worker pool. The result is
// index aligned with ids; a message that failed to load is left nil. Only a
// cancelled context aborts the whole call.
func (c *Client) GetMessagesParallel(ctx context.Context, ids []string, workers int) ([]*gmail.Message, error) {
	out := make([]*gmail.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if workers <= 0 || workers > maxWorkers {
		workers = defaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg, err := c.GetMessage(gctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logf("gmail: skip message %s: %v", id, err)
				return nil
			}
			out[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Modify adds and removes labels on a message
func (c *Client) Modify(ctx context.Context, id string, add, remove []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req := &gmail.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	if _, err := c.Service.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message %s: %w", id, classify(err))
	}
	return nil
}

// Trash moves a message to trash
func (c *Client) Trash(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.Service.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, classify(err))
	}
	return nil
}

// Untrash restores a message from trash
func (c *Client) Untrash(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.Service.Users.Messages.Untrash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("untrash message %s: %w", id, classify(err))
	}
	return nil
}

// Send sends an RFC 2822 message and returns its id
func (c *Client) Send(ctx context.Context, raw []byte) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := c.Service.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send message: %w", classify(err))
	}
	return sent.Id, nil
}

// History lists the changes recorded after startID. It returns the latest
// history id and whether anything changed.
func (c *Client) History(ctx context.Context, startID uint64) (uint64, bool, error) {
	if err := c.ready(); err != nil {
		return 0, false, err
	}
	latest := startID
	changed := false
	pageToken := ""
	for {
		call := c.Service.Users.History.List(user).StartHistoryId(startID)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		rctx, cancel := c.withTimeout(ctx)
		res, err := call.Context(rctx).Do()
		cancel()
		if err != nil {
			return 0, false, fmt.Errorf("list history: %w", classify(err))
		}
		if len(res.History) > 0 {
			changed = true
		}
		if res.HistoryId > latest {
			latest = res.HistoryId
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}
	return latest, changed, nil
}

// BuildRaw renders a plain text RFC 2822 message
func BuildRaw(from string, to, cc []string, subject, body, inReplyTo string) []byte {
	var sb strings.Builder
	header := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "%s: %s\r\n", k, v)
		}
	}
	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Cc", strings.Join(cc, ", "))
	header("Subject", subject)
	if inReplyTo != "" {
		header("In-Reply-To", inReplyTo)
		header("References", inReplyTo)
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
