package core

import (
	"fmt"
	"time"
)

// Label is the triage verdict for a single email
type Label string

const (
	LabelUnknown Label = "unknown"
	LabelSpam    Label = "spam"
	LabelHam     Label = "ham"
	LabelUnsure  Label = "unsure"
)

// Decided reports whether the label is a final verdict
func (l Label) Decided() bool {
	return l == LabelSpam || l == LabelHam || l == LabelUnsure
}

// Message is a message as reported by the mail provider
type Message struct {
	ID      string
	Subject string
	Sender  string
	Snippet string
}

// Email represents an email under triage
type Email struct {
	ID      string
	Subject string
	Sender  string
	Snippet string
	Label   Label
}

// Batch is the working set of one triage run.
//
// Emails keep fetch order and never change length. Every email before the
// cursor carries a decided label, every email at or after it is still unknown.
type Batch struct {
	Emails []Email
	cursor int
}

// NewBatch builds a batch with the cursor at zero and every label unknown
func NewBatch(msgs []Message) *Batch {
	emails := make([]Email, len(msgs))
	for i, m := range msgs {
		emails[i] = Email{
			ID:      m.ID,
			Subject: m.Subject,
			Sender:  m.Sender,
			Snippet: m.Snippet,
			Label:   LabelUnknown,
		}
	}
	return &Batch{Emails: emails}
}

// Len returns the number of emails in the batch
func (b *Batch) Len() int {
	return len(b.Emails)
}

// Cursor returns the index of the next email to classify
func (b *Batch) Cursor() int {
	return b.cursor
}

// Done reports whether every email has been classified and labeled
func (b *Batch) Done() bool {
	return b.cursor >= len(b.Emails)
}

// Current returns the email at the cursor, or nil when the batch is exhausted
func (b *Batch) Current() *Email {
	if b.Done() {
		return nil
	}
	return &b.Emails[b.cursor]
}

// advance moves the cursor past the current email
func (b *Batch) advance() {
	if !b.Done() {
		b.cursor++
	}
}

// LabelNames maps verdicts to the provider-side label applied for them
type LabelNames struct {
	Spam   string
	Ham    string
	Unsure string
}

// DefaultLabelNames returns the provider label names used when none are configured
func DefaultLabelNames() LabelNames {
	return LabelNames{
		Spam:   "AI_SPAM_REVIEW",
		Ham:    "AI_HAM",
		Unsure: "AI_UNSURE",
	}
}

// For returns the label set to apply for a decided verdict
func (n LabelNames) For(l Label) ([]string, error) {
	switch l {
	case LabelSpam:
		return []string{n.Spam}, nil
	case LabelHam:
		return []string{n.Ham}, nil
	case LabelUnsure:
		return []string{n.Unsure}, nil
	default:
		return nil, fmt.Errorf("no provider label for verdict %q", l)
	}
}

// VerdictEntry is a cached verdict for a single message
type VerdictEntry struct {
	MessageID string
	Sender    string
	Label     Label
	LastSeen  time.Time
	ExpiresAt time.Time
}
