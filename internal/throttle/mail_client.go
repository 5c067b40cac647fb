// Package throttle gates mail provider calls so runs stay under provider quotas.
package throttle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// MailClient waits on a rate limiter before every call to the wrapped client
type MailClient struct {
	next    core.MailClient
	limiter *rate.Limiter
}

// NewMailClient allows rps calls per second with a burst of one
func NewMailClient(next core.MailClient, rps float64) *MailClient {
	return &MailClient{next: next, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (m *MailClient) FetchRecent(ctx context.Context, maxResults int) ([]core.Message, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.next.FetchRecent(ctx, maxResults)
}

func (m *MailClient) ApplyLabels(ctx context.Context, id string, labels []string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.next.ApplyLabels(ctx, id, labels)
}

func (m *MailClient) Delete(ctx context.Context, id string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.next.Delete(ctx, id)
}

// Close closes the wrapped client when it holds resources
func (m *MailClient) Close() error {
	if closer, ok := m.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (m *MailClient) wait(ctx context.Context) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait canceled: %w", err)
	}
	return nil
}

var _ core.MailClient = (*MailClient)(nil)
