package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/message"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// Options configures the IMAP connection
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	// TrashMailbox, when set, receives deleted spam instead of expunging it
	TrashMailbox  string
	SnippetLength int
}

// ErrUIDPlusRequired is returned by Delete when the server can only expunge
// the whole mailbox, which would also remove messages flagged \Deleted elsewhere
var ErrUIDPlusRequired = errors.New("imap server lacks UIDPLUS, refusing an unscoped EXPUNGE")

// Client is a MailClient backed by a single IMAP connection.
// Labels are stored as IMAP keywords and ids are UIDs.
type Client struct {
	opts          Options
	logger        *zap.Logger
	textProcessor *utils.TextProcessor

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient validates the options; the connection is opened on first use
func NewClient(opts Options, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = 200
	}
	return &Client{opts: opts, logger: logger, textProcessor: textProcessor}, nil
}

// FetchRecent fetches the newest messages of the mailbox, newest first
func (c *Client) FetchRecent(ctx context.Context, maxResults int) ([]core.Message, error) {
	cl, err := c.conn()
	if err != nil {
		return nil, err
	}
	defer c.closeOnCancel(ctx, cl)()

	sel, err := cl.Select(c.opts.Mailbox, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap select %s: %w", c.opts.Mailbox, err)
	}
	start, stop, ok := seqRange(sel.NumMessages, maxResults)
	if !ok {
		c.logger.Info("Mailbox is empty", zap.String("mailbox", c.opts.Mailbox))
		return nil, nil
	}

	var seqSet imapv2.SeqSet
	seqSet.AddRange(start, stop)
	bodySection := &imapv2.FetchItemBodySection{Peek: true}
	buffers, err := cl.Fetch(seqSet, &imapv2.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imapv2.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	sort.Slice(buffers, func(i, j int) bool { return buffers[i].SeqNum > buffers[j].SeqNum })

	out := make([]core.Message, 0, len(buffers))
	for _, buf := range buffers {
		id := strconv.FormatUint(uint64(buf.UID), 10)
		msg := core.Message{ID: id}
		if buf.Envelope != nil {
			msg.Subject = buf.Envelope.Subject
			msg.Sender = envelopeSender(buf.Envelope)
		}

		if raw := buf.FindBodySection(bodySection); len(raw) > 0 {
			parsed, err := message.Parse(bytes.NewReader(raw))
			if err != nil {
				c.logger.Warn("Failed to parse message body", zap.String("email_id", id), zap.Error(err))
			} else {
				msg.Snippet = c.textProcessor.Snippet(parsed.Text, c.opts.SnippetLength)
				if msg.Sender == "" {
					msg.Sender = parsed.Sender
				}
				if msg.Subject == "" {
					msg.Subject = parsed.Subject
				}
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// ApplyLabels adds the labels as keywords on the message
func (c *Client) ApplyLabels(ctx context.Context, id string, labels []string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	cl, err := c.conn()
	if err != nil {
		return err
	}
	defer c.closeOnCancel(ctx, cl)()

	flags := make([]imapv2.Flag, len(labels))
	for i, l := range labels {
		flags[i] = imapv2.Flag(l)
	}
	store := &imapv2.StoreFlags{Op: imapv2.StoreFlagsAdd, Silent: true, Flags: flags}
	if err := cl.Store(imapv2.UIDSetNum(uid), store, nil).Close(); err != nil {
		return fmt.Errorf("imap store %s: %w", id, err)
	}
	return nil
}

// Delete moves the message to the trash mailbox, or flags and expunges it
func (c *Client) Delete(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	cl, err := c.conn()
	if err != nil {
		return err
	}
	defer c.closeOnCancel(ctx, cl)()

	uidSet := imapv2.UIDSetNum(uid)
	found, err := cl.Fetch(uidSet, &imapv2.FetchOptions{UID: true}).Collect()
	if err != nil {
		return fmt.Errorf("imap lookup %s: %w", id, err)
	}
	if len(found) == 0 {
		return fmt.Errorf("imap message %s: %w", id, core.ErrMessageNotFound)
	}

	// Without MOVE or UIDPLUS both paths end in a plain EXPUNGE, which
	// removes every \Deleted message in the mailbox, not just this one.
	caps := cl.Caps()
	if c.opts.TrashMailbox != "" {
		if !caps.Has(imapv2.CapMove) && !caps.Has(imapv2.CapUIDPlus) {
			return fmt.Errorf("imap move %s to %s: %w", id, c.opts.TrashMailbox, ErrUIDPlusRequired)
		}
		if _, err := cl.Move(uidSet, c.opts.TrashMailbox).Wait(); err != nil {
			return fmt.Errorf("imap move %s to %s: %w", id, c.opts.TrashMailbox, err)
		}
		return nil
	}
	if !caps.Has(imapv2.CapUIDPlus) {
		return fmt.Errorf("imap delete %s: %w", id, ErrUIDPlusRequired)
	}

	store := &imapv2.StoreFlags{Op: imapv2.StoreFlagsAdd, Silent: true, Flags: []imapv2.Flag{imapv2.FlagDeleted}}
	if err := cl.Store(uidSet, store, nil).Close(); err != nil {
		return fmt.Errorf("imap flag deleted %s: %w", id, err)
	}
	if err := cl.UIDExpunge(uidSet).Close(); err != nil {
		return fmt.Errorf("imap expunge %s: %w", id, err)
	}
	return nil
}

// Close logs out and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.mu.Unlock()

	if cl == nil {
		return nil
	}
	if err := cl.Logout().Wait(); err != nil {
		c.logger.Warn("imap logout failed", zap.Error(err))
	}
	return cl.Close()
}

// closeOnCancel closes cl when ctx is done and forgets it so the next call
// redials. The returned func stops the watch.
func (c *Client) closeOnCancel(ctx context.Context, cl *imapclient.Client) func() bool {
	return context.AfterFunc(ctx, func() {
		c.mu.Lock()
		if c.client == cl {
			c.client = nil
		}
		c.mu.Unlock()
		_ = cl.Close()
	})
}

func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

func (c *Client) conn() (*imapclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	address := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	options := &imapclient.Options{}

	var (
		cl  *imapclient.Client
		err error
	)
	if c.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         c.opts.Host,
			InsecureSkipVerify: c.opts.InsecureSkipVerify,
		}
		cl, err = imapclient.DialTLS(address, options)
	} else {
		cl, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := cl.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	if _, err := cl.Select(c.opts.Mailbox, nil).Wait(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("imap select %s: %w", c.opts.Mailbox, err)
	}

	c.logger.Debug("imap connection established",
		zap.String("address", address),
		zap.String("user", c.opts.Username),
		zap.String("mailbox", c.opts.Mailbox),
		zap.Bool("tls", c.opts.UseTLS))

	c.client = cl
	return cl, nil
}

// seqRange returns the sequence range holding the newest max messages
func seqRange(numMessages uint32, max int) (uint32, uint32, bool) {
	if numMessages == 0 || max <= 0 {
		return 0, 0, false
	}
	start := uint32(1)
	if uint64(numMessages) > uint64(max) {
		start = numMessages - uint32(max) + 1
	}
	return start, numMessages, true
}

func parseUID(id string) (imapv2.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap uid %q", id)
	}
	return imapv2.UID(n), nil
}

func envelopeSender(env *imapv2.Envelope) string {
	if len(env.From) == 0 {
		return ""
	}
	from := env.From[0]
	if from.Name == "" {
		return from.Addr()
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Addr())
}

var _ core.MailClient = (*Client)(nil)
