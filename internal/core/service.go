package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options controls a triage run
type Options struct {
	MaxResults   int
	LabelRetries int
	RetryBackoff time.Duration
	Labels       LabelNames
	DeleteSpam   bool
	DryRun       bool
	CacheTTL     time.Duration
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		MaxResults:   20,
		LabelRetries: 2,
		RetryBackoff: time.Second,
		Labels:       DefaultLabelNames(),
		DeleteSpam:   true,
	}
}

// Report summarizes a completed run
type Report struct {
	Processed int
	Counts    map[Label]int
	Deleted   []string
	// Retained lists spam that was left in the mailbox for manual review
	Retained []string
	// DeleteErr aggregates every *DeleteError from cleanup
	DeleteErr error
}

// Pipeline drives one batch of emails through the triage state machine
type Pipeline struct {
	mail       MailClient
	classifier Classifier
	cache      VerdictCache
	whitelist  Whitelist
	logger     *zap.Logger
	opts       Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a new triage pipeline. cache and whitelist may be nil.
func NewPipeline(
	mail MailClient,
	classifier Classifier,
	cache VerdictCache,
	whitelist Whitelist,
	logger *zap.Logger,
	opts Options,
) *Pipeline {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	if opts.LabelRetries < 0 {
		opts.LabelRetries = 0
	}
	if opts.Labels == (LabelNames{}) {
		opts.Labels = DefaultLabelNames()
	}
	return &Pipeline{
		mail:       mail,
		classifier: classifier,
		cache:      cache,
		whitelist:  whitelist,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Run executes fetch, the classify/apply loop and cleanup exactly once.
// A fatal error is returned as a *RunError and cleanup is skipped.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	var batch *Batch
	report := &Report{Counts: make(map[Label]int)}

	for state := StateFetching; state != StateDone; state = next(state, batch) {
		var err error
		switch state {
		case StateFetching:
			batch, err = p.fetch(ctx)
		case StateClassifying:
			err = p.classify(ctx, batch)
		case StateApplying:
			err = p.apply(ctx, batch)
		case StateCleanup:
			p.cleanup(ctx, batch, report)
		}
		if err != nil {
			labeled := 0
			if batch != nil {
				labeled = batch.Cursor()
			}
			p.logger.Error("Triage run failed",
				zap.Stringer("state", state),
				zap.Int("labeled", labeled),
				zap.Error(err))
			return nil, &RunError{State: state, Labeled: labeled, Err: err}
		}
	}

	report.Processed = batch.Len()
	for _, email := range batch.Emails {
		report.Counts[email.Label]++
	}

	p.logger.Info("Triage run complete",
		zap.Int("processed", report.Processed),
		zap.Int("spam", report.Counts[LabelSpam]),
		zap.Int("ham", report.Counts[LabelHam]),
		zap.Int("unsure", report.Counts[LabelUnsure]),
		zap.Int("deleted", len(report.Deleted)),
		zap.Bool("dry_run", p.opts.DryRun))

	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context) (*Batch, error) {
	msgs, err := p.mail.FetchRecent(ctx, p.opts.MaxResults)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if len(msgs) > p.opts.MaxResults {
		msgs = msgs[:p.opts.MaxResults]
	}
	p.logger.Info("Fetched recent messages", zap.Int("count", len(msgs)))
	return NewBatch(msgs), nil
}

func (p *Pipeline) classify(ctx context.Context, b *Batch) error {
	email := b.Current()
	if email == nil {
		return nil
	}

	label, source, err := p.Decide(ctx, email)
	if err != nil {
		return err
	}
	email.Label = label

	p.logger.Debug("Classified email",
		zap.String("email_id", email.ID),
		zap.Int("cursor", b.Cursor()),
		zap.String("label", string(label)),
		zap.String("source", source))
	return nil
}

// Decide returns the verdict for one email and where it came from:
// "whitelist", "cache" or "model". Emails without an id skip the cache, as
// do all emails when CacheTTL is not positive.
func (p *Pipeline) Decide(ctx context.Context, email *Email) (Label, string, error) {
	if p.whitelist != nil && p.whitelist.IsWhitelisted(email.Sender) {
		p.logger.Info("Skipping classification for whitelisted sender",
			zap.String("email_id", email.ID),
			zap.String("sender", email.Sender),
			zap.String("action", "whitelist_bypass"))
		return LabelHam, "whitelist", nil
	}

	cached := p.cache != nil && email.ID != "" && p.opts.CacheTTL > 0
	if cached {
		if entry, err := p.cache.Get(ctx, email.ID); err == nil && entry.Label.Decided() {
			p.logger.Debug("Cache hit for email", zap.String("email_id", email.ID))
			return entry.Label, "cache", nil
		}
	}

	output, err := p.classifier.Classify(ctx, email.Sender, email.Subject, email.Snippet)
	if err != nil {
		return LabelUnknown, "", &ClassifyError{EmailID: email.ID, Err: err}
	}
	label := DecideLabel(output)

	if cached {
		now := p.now()
		entry := &VerdictEntry{
			MessageID: email.ID,
			Sender:    email.Sender,
			Label:     label,
			LastSeen:  now,
			ExpiresAt: now.Add(p.opts.CacheTTL),
		}
		if err := p.cache.Set(ctx, entry); err != nil {
			p.logger.Error("Failed to update verdict cache", zap.String("email_id", email.ID), zap.Error(err))
		}
	}

	return label, "model", nil
}

func (p *Pipeline) apply(ctx context.Context, b *Batch) error {
	email := b.Current()
	if email == nil {
		return nil
	}

	labels, err := p.opts.Labels.For(email.Label)
	if err != nil {
		return &LabelError{EmailID: email.ID, Err: err}
	}

	if p.opts.DryRun {
		p.logger.Info("Dry run, not applying labels",
			zap.String("email_id", email.ID),
			zap.Strings("labels", labels))
	} else if err := p.applyWithRetry(ctx, email, labels); err != nil {
		return err
	}

	b.advance()
	return nil
}

func (p *Pipeline) applyWithRetry(ctx context.Context, email *Email, labels []string) error {
	attempts := p.opts.LabelRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.mail.ApplyLabels(ctx, email.ID, labels)
		if lastErr == nil {
			p.logger.Info("Applied labels",
				zap.String("email_id", email.ID),
				zap.Strings("labels", labels),
				zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Failed to apply labels",
			zap.String("email_id", email.ID),
			zap.Strings("labels", labels),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < attempts {
			if err := p.sleep(ctx, p.opts.RetryBackoff*time.Duration(attempt)); err != nil {
				return &LabelError{EmailID: email.ID, Labels: labels, Attempts: attempt, Err: err}
			}
		}
	}
	return &LabelError{EmailID: email.ID, Labels: labels, Attempts: attempts, Err: lastErr}
}

func (p *Pipeline) cleanup(ctx context.Context, b *Batch, report *Report) {
	for _, email := range b.Emails {
		if email.Label != LabelSpam {
			continue
		}
		if p.opts.DryRun || !p.opts.DeleteSpam {
			report.Retained = append(report.Retained, email.ID)
			continue
		}

		err := p.mail.Delete(ctx, email.ID)
		switch {
		case err == nil:
			report.Deleted = append(report.Deleted, email.ID)
			p.logger.Info("Deleted spam", zap.String("email_id", email.ID))
		case errors.Is(err, ErrMessageNotFound):
			report.Deleted = append(report.Deleted, email.ID)
			p.logger.Debug("Spam already gone", zap.String("email_id", email.ID))
		default:
			report.DeleteErr = multierr.Append(report.DeleteErr, &DeleteError{EmailID: email.ID, Err: err})
			p.logger.Error("Failed to delete spam", zap.String("email_id", email.ID), zap.Error(err))
		}
	}

	if report.DeleteErr != nil {
		p.logger.Warn("Cleanup finished with failures",
			zap.Int("failed", len(multierr.Errors(report.DeleteErr))),
			zap.Int("deleted", len(report.Deleted)))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
