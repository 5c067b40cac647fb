package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mikey/llm-mail-triage/internal/adapters/gmail"
	"github.com/mikey/llm-mail-triage/internal/adapters/imap"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/throttle"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// MailFactory creates mailbox clients based on configuration
type MailFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewMailFactory creates a new mail factory
func NewMailFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *MailFactory {
	return &MailFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateMailClient creates the configured mail client, rate limited when rps is set
func (f *MailFactory) CreateMailClient(ctx context.Context) (core.MailClient, error) {
	provider := f.cfg.GetMail().Provider
	f.logger.Info("Creating mail client", zap.String("provider", provider))

	var (
		client core.MailClient
		rps    float64
		err    error
	)
	switch provider {
	case "gmail":
		rps = f.cfg.GetGmail().RPS
		client, err = f.createGmail(ctx)
	case "imap":
		rps = f.cfg.GetIMAP().RPS
		client, err = f.createIMAP()
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	if rps > 0 {
		return throttle.NewMailClient(client, rps), nil
	}
	return client, nil
}

func (f *MailFactory) createGmail(ctx context.Context) (core.MailClient, error) {
	c := f.cfg.GetGmail()

	// messages.delete needs the full mail scope; trash and modify do not
	scope := gmailapi.GmailModifyScope
	if c.PermanentDelete {
		scope = gmailapi.MailGoogleComScope
	}

	svc, err := gmailapi.NewService(ctx,
		option.WithCredentialsFile(c.CredentialsFile),
		option.WithScopes(scope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return gmail.NewClient(svc, c.UserID, c.Query, c.PermanentDelete, f.logger), nil
}

func (f *MailFactory) createIMAP() (core.MailClient, error) {
	c := f.cfg.GetIMAP()
	return imap.NewClient(imap.Options{
		Host:               c.Host,
		Port:               c.Port,
		Username:           c.Username,
		Password:           c.Password,
		UseTLS:             c.TLS,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Mailbox:            c.Mailbox,
		TrashMailbox:       c.TrashMailbox,
		SnippetLength:      f.cfg.GetInt("triage.snippet_length"),
	}, f.logger, f.textProcessor)
}
