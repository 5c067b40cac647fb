// Package gmail adapts *gmail.Service to the pipeline's MailClient.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Client talks to the Gmail REST API on behalf of a single user
type Client struct {
	svc             *gmail.Service
	userID          string
	query           string
	permanentDelete bool
	logger          *zap.Logger

	mu       sync.Mutex
	labelIDs map[string]string
}

// NewClient wraps an authenticated Gmail service.
// query restricts listing (for example "in:inbox"); empty lists everything.
func NewClient(svc *gmail.Service, userID, query string, permanentDelete bool, logger *zap.Logger) *Client {
	if userID == "" {
		userID = "me"
	}
	return &Client{
		svc:             svc,
		userID:          userID,
		query:           query,
		permanentDelete: permanentDelete,
		logger:          logger,
	}
}

// FetchRecent lists the newest messages and reads their From, Subject and snippet
func (c *Client) FetchRecent(ctx context.Context, maxResults int) ([]core.Message, error) {
	call := c.svc.Users.Messages.List(c.userID).MaxResults(int64(maxResults))
	if c.query != "" {
		call = call.Q(c.query)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]core.Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		msg, err := c.svc.Users.Messages.Get(c.userID, m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", m.Id, err)
		}
		out = append(out, toMessage(msg))
	}
	return out, nil
}

// ApplyLabels adds the named labels, creating any that do not exist yet
func (c *Client) ApplyLabels(ctx context.Context, id string, labels []string) error {
	ids := make([]string, 0, len(labels))
	for _, name := range labels {
		lid, err := c.ensureLabel(ctx, name)
		if err != nil {
			return err
		}
		ids = append(ids, lid)
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: ids}
	if _, err := c.svc.Users.Messages.Modify(c.userID, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message %s: %w", id, mapNotFound(err))
	}
	return nil
}

// Delete moves a message to the trash, or removes it for good when configured to
func (c *Client) Delete(ctx context.Context, id string) error {
	var err error
	if c.permanentDelete {
		err = c.svc.Users.Messages.Delete(c.userID, id).Context(ctx).Do()
	} else {
		_, err = c.svc.Users.Messages.Trash(c.userID, id).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, mapNotFound(err))
	}
	return nil
}

func (c *Client) ensureLabel(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.labelIDs == nil {
		lr, err := c.svc.Users.Labels.List(c.userID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("list labels: %w", err)
		}
		c.labelIDs = make(map[string]string, len(lr.Labels))
		for _, l := range lr.Labels {
			c.labelIDs[l.Name] = l.Id
		}
	}
	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	created, err := c.svc.Users.Labels.Create(c.userID, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	c.logger.Info("Created Gmail label", zap.String("label", name), zap.String("label_id", created.Id))
	c.labelIDs[name] = created.Id
	return created.Id, nil
}

func toMessage(msg *gmail.Message) core.Message {
	m := core.Message{ID: msg.Id, Snippet: msg.Snippet}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch {
		case strings.EqualFold(h.Name, "From"):
			m.Sender = h.Value
		case strings.EqualFold(h.Name, "Subject"):
			m.Subject = h.Value
		}
	}
	return m
}

func mapNotFound(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", core.ErrMessageNotFound, err)
	}
	return err
}

var _ core.MailClient = (*Client)(nil)
