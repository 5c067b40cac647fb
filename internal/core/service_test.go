package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type appliedLabels struct {
	id     string
	labels []string
}

type fakeMail struct {
	messages   []Message
	fetchErr   error
	fetchCalls int

	// applyErrs is consumed one error per call for an id; nil entries succeed
	applyErrs map[string][]error
	applied   []appliedLabels

	deleteErrs map[string]error
	deleted    []string

	events []string
}

func (f *fakeMail) FetchRecent(ctx context.Context, maxResults int) ([]Message, error) {
	f.fetchCalls++
	f.events = append(f.events, "fetch")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.messages) > maxResults {
		return f.messages[:maxResults], nil
	}
	return f.messages, nil
}

func (f *fakeMail) ApplyLabels(ctx context.Context, id string, labels []string) error {
	f.events = append(f.events, "apply:"+id)
	if errs := f.applyErrs[id]; len(errs) > 0 {
		err := errs[0]
		f.applyErrs[id] = errs[1:]
		if err != nil {
			return err
		}
	}
	f.applied = append(f.applied, appliedLabels{id: id, labels: append([]string(nil), labels...)})
	return nil
}

func (f *fakeMail) Delete(ctx context.Context, id string) error {
	f.events = append(f.events, "delete:"+id)
	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeClassifier struct {
	// outputs is keyed by subject
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeClassifier) Classify(ctx context.Context, sender, subject, snippet string) (string, error) {
	f.calls = append(f.calls, subject)
	if err := f.errs[subject]; err != nil {
		return "", err
	}
	return f.outputs[subject], nil
}

type mapCache struct {
	entries map[string]*VerdictEntry
	sets    int
}

func (m *mapCache) Get(ctx context.Context, messageID string) (*VerdictEntry, error) {
	if e, ok := m.entries[messageID]; ok {
		return e, nil
	}
	return nil, errors.New("miss")
}

func (m *mapCache) Set(ctx context.Context, entry *VerdictEntry) error {
	m.sets++
	m.entries[entry.MessageID] = entry
	return nil
}

func (m *mapCache) Delete(ctx context.Context, messageID string) error {
	delete(m.entries, messageID)
	return nil
}

func (m *mapCache) Cleanup(ctx context.Context) error {
	return nil
}

type domainWhitelist string

func (d domainWhitelist) IsWhitelisted(sender string) bool {
	return sender == string(d)
}

func newTestPipeline(mail MailClient, classifier Classifier, opts Options) *Pipeline {
	p := NewPipeline(mail, classifier, nil, nil, zap.NewNop(), opts)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestRunEndToEnd(t *testing.T) {
	mail := &fakeMail{messages: []Message{
		{ID: "a", Subject: "win money", Sender: "x@spam.test"},
		{ID: "b", Subject: "lunch", Sender: "friend@example.com"},
	}}
	classifier := &fakeClassifier{outputs: map[string]string{"win money": "spam", "lunch": "ham"}}

	report, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, []appliedLabels{
		{id: "a", labels: []string{"AI_SPAM_REVIEW"}},
		{id: "b", labels: []string{"AI_HAM"}},
	}, mail.applied)
	assert.Equal(t, []string{"a"}, mail.deleted)
	assert.Equal(t, []string{"a"}, report.Deleted)
	assert.Equal(t, []string{"fetch", "apply:a", "apply:b", "delete:a"}, mail.events)
	assert.NoError(t, report.DeleteErr)
}

func TestRunEmptyBatch(t *testing.T) {
	mail := &fakeMail{}
	classifier := &fakeClassifier{}

	report, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, mail.fetchCalls)
	assert.Empty(t, classifier.calls)
	assert.Empty(t, mail.applied)
	assert.Empty(t, mail.deleted)
}

func TestRunLabelsEveryEmail(t *testing.T) {
	mail := &fakeMail{messages: []Message{
		{ID: "1", Subject: "s1"}, {ID: "2", Subject: "s2"}, {ID: "3", Subject: "s3"},
		{ID: "4", Subject: "s4"}, {ID: "5", Subject: "s5"},
	}}
	classifier := &fakeClassifier{outputs: map[string]string{
		"s1": "SPAM", "s2": "ham", "s3": "", "s4": "spam or ham", "s5": "no idea",
	}}

	report, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Processed)
	assert.Zero(t, report.Counts[LabelUnknown])
	assert.Equal(t, 1, report.Counts[LabelSpam])
	assert.Equal(t, 2, report.Counts[LabelHam])
	assert.Equal(t, 2, report.Counts[LabelUnsure])
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5"}, classifier.calls)
	assert.Len(t, mail.applied, 5)
}

func TestRespectsMaxResults(t *testing.T) {
	msgs := make([]Message, 30)
	for i := range msgs {
		msgs[i] = Message{ID: string(rune('a' + i)), Subject: "s"}
	}
	mail := &fakeMail{messages: msgs}
	classifier := &fakeClassifier{outputs: map[string]string{"s": "ham"}}

	report, err := newTestPipeline(mail, classifier, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, report.Processed)
}

func TestCursorAdvancesOncePerApply(t *testing.T) {
	mail := &fakeMail{}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "ham", "b": "spam", "c": "?"}}
	p := newTestPipeline(mail, classifier, DefaultOptions())
	b := NewBatch([]Message{{ID: "a", Subject: "a"}, {ID: "b", Subject: "b"}, {ID: "c", Subject: "c"}})

	ctx := context.Background()
	for i := 0; i < b.Len(); i++ {
		require.Equal(t, i, b.Cursor())

		require.NoError(t, p.classify(ctx, b))
		assert.Equal(t, i, b.Cursor(), "classify must not move the cursor")
		assert.True(t, b.Emails[i].Label.Decided())
		for j := i + 1; j < b.Len(); j++ {
			assert.Equal(t, LabelUnknown, b.Emails[j].Label)
		}

		require.NoError(t, p.apply(ctx, b))
		assert.Equal(t, i+1, b.Cursor())
	}
	assert.True(t, b.Done())

	// exhausted batch is a pass-through
	require.NoError(t, p.classify(ctx, b))
	require.NoError(t, p.apply(ctx, b))
	assert.Equal(t, 3, b.Cursor())
	assert.Len(t, classifier.calls, 3)
	assert.Len(t, mail.applied, 3)
}

func TestApplyFailureDoesNotAdvanceCursor(t *testing.T) {
	boom := errors.New("provider unavailable")
	mail := &fakeMail{applyErrs: map[string][]error{"a": {boom}}}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "ham"}}
	opts := DefaultOptions()
	opts.LabelRetries = 0
	p := newTestPipeline(mail, classifier, opts)
	b := NewBatch([]Message{{ID: "a", Subject: "a"}})

	require.NoError(t, p.classify(context.Background(), b))
	err := p.apply(context.Background(), b)

	var labelErr *LabelError
	require.ErrorAs(t, err, &labelErr)
	assert.Equal(t, "a", labelErr.EmailID)
	assert.Equal(t, 1, labelErr.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.Cursor())
}

func TestApplyRetriesThenSucceeds(t *testing.T) {
	boom := errors.New("rate limited")
	mail := &fakeMail{
		messages:  []Message{{ID: "a", Subject: "a"}},
		applyErrs: map[string][]error{"a": {boom, boom}},
	}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "ham"}}
	opts := DefaultOptions()
	opts.LabelRetries = 2
	opts.RetryBackoff = time.Second
	p := newTestPipeline(mail, classifier, opts)

	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	assert.Equal(t, []string{"fetch", "apply:a", "apply:a", "apply:a"}, mail.events)
}

func TestLabelFailureAbortsRunBeforeCleanup(t *testing.T) {
	boom := errors.New("provider unavailable")
	mail := &fakeMail{
		messages:  []Message{{ID: "a", Subject: "a"}, {ID: "b", Subject: "b"}},
		applyErrs: map[string][]error{"b": {boom, boom}},
	}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "spam", "b": "spam"}}
	opts := DefaultOptions()
	opts.LabelRetries = 1

	report, err := newTestPipeline(mail, classifier, opts).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StateApplying, runErr.State)
	assert.Equal(t, 1, runErr.Labeled)

	var labelErr *LabelError
	require.ErrorAs(t, err, &labelErr)
	assert.Equal(t, 2, labelErr.Attempts)
	assert.Empty(t, mail.deleted, "cleanup must not run after a fatal error")
}

func TestClassifyErrorIsFatal(t *testing.T) {
	timeout := errors.New("deadline exceeded")
	mail := &fakeMail{messages: []Message{{ID: "a", Subject: "a"}, {ID: "b", Subject: "b"}}}
	classifier := &fakeClassifier{
		outputs: map[string]string{"a": "spam"},
		errs:    map[string]error{"b": timeout},
	}

	_, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StateClassifying, runErr.State)
	assert.Equal(t, 1, runErr.Labeled)

	var classifyErr *ClassifyError
	require.ErrorAs(t, err, &classifyErr)
	assert.Equal(t, "b", classifyErr.EmailID)
	assert.ErrorIs(t, err, timeout)
	assert.Len(t, mail.applied, 1)
	assert.Empty(t, mail.deleted)
}

func TestFetchErrorIsFatal(t *testing.T) {
	mail := &fakeMail{fetchErr: errors.New("unauthorized")}
	classifier := &fakeClassifier{}

	_, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StateFetching, runErr.State)
	assert.Equal(t, 0, runErr.Labeled)
	assert.Empty(t, classifier.calls)
}

func TestCleanupCollectsDeleteErrors(t *testing.T) {
	mail := &fakeMail{
		messages: []Message{
			{ID: "a", Subject: "spam"}, {ID: "b", Subject: "spam"},
			{ID: "c", Subject: "ham"}, {ID: "d", Subject: "spam"}, {ID: "e", Subject: "spam"},
		},
		deleteErrs: map[string]error{
			"b": errors.New("server error"),
			"e": ErrMessageNotFound,
		},
	}
	classifier := &fakeClassifier{outputs: map[string]string{"spam": "spam", "ham": "ham"}}

	report, err := newTestPipeline(mail, classifier, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "d", "e"}, report.Deleted)
	assert.Equal(t, []string{"fetch", "apply:a", "apply:b", "apply:c", "apply:d", "apply:e",
		"delete:a", "delete:b", "delete:d", "delete:e"}, mail.events)

	errs := multierr.Errors(report.DeleteErr)
	require.Len(t, errs, 1)
	var deleteErr *DeleteError
	require.ErrorAs(t, errs[0], &deleteErr)
	assert.Equal(t, "b", deleteErr.EmailID)
}

func TestDryRunSkipsMutations(t *testing.T) {
	mail := &fakeMail{messages: []Message{{ID: "a", Subject: "a"}, {ID: "b", Subject: "b"}}}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "spam", "b": "ham"}}
	opts := DefaultOptions()
	opts.DryRun = true

	report, err := newTestPipeline(mail, classifier, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Empty(t, mail.applied)
	assert.Empty(t, mail.deleted)
	assert.Equal(t, []string{"a"}, report.Retained)
	assert.Len(t, classifier.calls, 2)
}

func TestDeleteSpamDisabledRetainsSpam(t *testing.T) {
	mail := &fakeMail{messages: []Message{{ID: "a", Subject: "a"}}}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "spam"}}
	opts := DefaultOptions()
	opts.DeleteSpam = false

	report, err := newTestPipeline(mail, classifier, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []appliedLabels{{id: "a", labels: []string{"AI_SPAM_REVIEW"}}}, mail.applied)
	assert.Empty(t, mail.deleted)
	assert.Equal(t, []string{"a"}, report.Retained)
}

func TestCustomLabelNames(t *testing.T) {
	mail := &fakeMail{messages: []Message{{ID: "a", Subject: "a"}}}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "maybe"}}
	opts := DefaultOptions()
	opts.Labels = LabelNames{Spam: "triage/spam", Ham: "triage/ham", Unsure: "triage/unsure"}

	_, err := newTestPipeline(mail, classifier, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []appliedLabels{{id: "a", labels: []string{"triage/unsure"}}}, mail.applied)
}

func TestDecideUsesWhitelistAndCache(t *testing.T) {
	mail := &fakeMail{messages: []Message{
		{ID: "a", Subject: "a", Sender: "boss@corp.test"},
		{ID: "b", Subject: "b", Sender: "x@y.test"},
		{ID: "c", Subject: "c", Sender: "x@y.test"},
	}}
	classifier := &fakeClassifier{outputs: map[string]string{"a": "spam", "b": "spam", "c": "spam"}}
	cache := &mapCache{entries: map[string]*VerdictEntry{
		"b": {MessageID: "b", Label: LabelUnsure},
	}}
	opts := DefaultOptions()
	opts.CacheTTL = time.Hour

	p := NewPipeline(mail, classifier, cache, domainWhitelist("boss@corp.test"), zap.NewNop(), opts)
	fixed := time.Date(2024, time.March, 9, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, classifier.calls)
	assert.Equal(t, []appliedLabels{
		{id: "a", labels: []string{"AI_HAM"}},
		{id: "b", labels: []string{"AI_UNSURE"}},
		{id: "c", labels: []string{"AI_SPAM_REVIEW"}},
	}, mail.applied)
	assert.Equal(t, []string{"c"}, report.Deleted)

	require.Contains(t, cache.entries, "c")
	assert.Equal(t, LabelSpam, cache.entries["c"].Label)
	assert.Equal(t, fixed.Add(time.Hour), cache.entries["c"].ExpiresAt)
	assert.Equal(t, 1, cache.sets)
}

func TestDecideSkipsCacheWithoutTTL(t *testing.T) {
	classifier := &fakeClassifier{outputs: map[string]string{"a": "spam"}}
	cache := &mapCache{entries: map[string]*VerdictEntry{
		"b": {MessageID: "b", Label: LabelHam},
	}}
	p := NewPipeline(&fakeMail{}, classifier, cache, nil, zap.NewNop(), DefaultOptions())

	for i := 0; i < 2; i++ {
		label, source, err := p.Decide(context.Background(), &Email{ID: "a", Subject: "a"})
		require.NoError(t, err)
		assert.Equal(t, LabelSpam, label)
		assert.Equal(t, "model", source)
	}
	classifier.outputs["b"] = "not spam"
	_, source, err := p.Decide(context.Background(), &Email{ID: "b", Subject: "b"})
	require.NoError(t, err)
	assert.Equal(t, "model", source)

	assert.Equal(t, []string{"a", "a", "b"}, classifier.calls)
	assert.Zero(t, cache.sets)
	assert.NotContains(t, cache.entries, "a")
}

func TestRunErrorMessage(t *testing.T) {
	err := &RunError{State: StateApplying, Labeled: 3, Err: &LabelError{EmailID: "x", Labels: []string{"AI_HAM"}, Attempts: 2, Err: errors.New("boom")}}
	assert.Equal(t, "triage failed in applying after labeling 3 email(s): apply labels [AI_HAM] to email x after 2 attempt(s): boom", err.Error())
}
