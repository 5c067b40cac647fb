package core

import (
	"context"
)

// MailClient defines the narrow mailbox surface the pipeline needs
type MailClient interface {
	// FetchRecent returns up to maxResults of the most recent messages, newest first
	FetchRecent(ctx context.Context, maxResults int) ([]Message, error)

	// ApplyLabels adds the given label set to a message. Reapplying is safe.
	ApplyLabels(ctx context.Context, id string, labels []string) error

	// Delete removes a message. A missing message yields ErrMessageNotFound.
	Delete(ctx context.Context, id string) error
}

// Classifier defines the interface for the language-model call.
// The returned text is free-form.
type Classifier interface {
	Classify(ctx context.Context, sender, subject, snippet string) (string, error)
}

// VerdictCache defines the interface for caching verdicts by message id
type VerdictCache interface {
	// Get retrieves an unexpired verdict for a message
	Get(ctx context.Context, messageID string) (*VerdictEntry, error)

	// Set stores a verdict
	Set(ctx context.Context, entry *VerdictEntry) error

	// Delete removes a verdict
	Delete(ctx context.Context, messageID string) error

	// Cleanup removes expired verdicts
	Cleanup(ctx context.Context) error
}

// Whitelist reports senders that are never sent to the classifier
type Whitelist interface {
	IsWhitelisted(sender string) bool
}
