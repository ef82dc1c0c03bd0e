package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/chigogiggs/converse/internal/translate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	viewerID    = uuid.New()
	recipientID = uuid.New()
	strangerID  = uuid.New()
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []domain.MessageRow
	listGate chan struct{} // when set, ListConversation blocks until closed
	saveErr  error
	saveHook func() // runs inside Save, before the row is recorded
}

// ListConversation snapshots its result before blocking on the gate, like a
// real query whose result set predates anything inserted while it is in
// flight.
func (s *fakeStore) ListConversation(ctx context.Context, userA, userB uuid.UUID) ([]domain.MessageRow, error) {
	s.mu.Lock()
	var out []domain.MessageRow
	for _, row := range s.rows {
		if (row.SenderID == userA && row.RecipientID == userB) ||
			(row.SenderID == userB && row.RecipientID == userA) {
			out = append(out, row)
		}
	}
	s.mu.Unlock()
	if s.listGate != nil {
		<-s.listGate
	}
	return out, nil
}

func (s *fakeStore) Save(ctx context.Context, msg *domain.MessageRow) error {
	if s.saveHook != nil {
		s.saveHook()
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	s.mu.Lock()
	s.rows = append(s.rows, *msg)
	s.mu.Unlock()
	return nil
}

type fakePrefs struct {
	mu          sync.Mutex
	prefs       map[uuid.UUID]*domain.UserPreference
	getErr      error
	firstMarked []uuid.UUID
}

func (p *fakePrefs) Get(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	if p.getErr != nil {
		return nil, p.getErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs[userID], nil
}

func (p *fakePrefs) MarkFirstMessageSent(ctx context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.firstMarked = append(p.firstMarked, userID)
	return nil
}

// fakeTranslator prefixes text with the target code, e.g. "hi" → "[es] hi".
// Texts listed in failOn degrade to identity, like the real gateway.
type fakeTranslator struct {
	failOn map[string]bool
}

func (t *fakeTranslator) Translate(ctx context.Context, text, targetCode string) translate.Result {
	if t.failOn[text] {
		return translate.Result{Text: text, Language: "English"}
	}
	return translate.Result{Text: "[" + targetCode + "] " + text, Language: translate.LanguageName(targetCode)}
}

type fakeSub struct {
	events chan domain.MessageRow
	once   sync.Once
}

func (s *fakeSub) Events() <-chan domain.MessageRow { return s.events }

func (s *fakeSub) Close() { s.once.Do(func() { close(s.events) }) }

type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeSubscriber) Subscribe(userID uuid.UUID) (Subscription, error) {
	sub := &fakeSub{events: make(chan domain.MessageRow, 16)}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeSubscriber) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) record(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) HistoryLoaded(messages []Message) { r.record("history") }

func (r *recordingSink) MessageAppended(msg Message) { r.record("append:" + msg.Text) }

func (r *recordingSink) MessageReplaced(localID string, msg Message) { r.record("replace:" + msg.Text) }

func (r *recordingSink) MessageRemoved(localID string) { r.record("remove") }

func (r *recordingSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	engine     *Engine
	store      *fakeStore
	prefs      *fakePrefs
	translator *fakeTranslator
	subscriber *fakeSubscriber
	sink       *recordingSink
}

func newFixture() *fixture {
	f := &fixture{
		store: &fakeStore{},
		prefs: &fakePrefs{prefs: map[uuid.UUID]*domain.UserPreference{
			viewerID:    {UserID: viewerID, PreferredLanguage: "en"},
			recipientID: {UserID: recipientID, PreferredLanguage: "es"},
		}},
		translator: &fakeTranslator{},
		subscriber: &fakeSubscriber{},
		sink:       &recordingSink{},
	}
	f.engine = NewEngine(SessionIdentity(viewerID), f.store, f.prefs, f.translator, f.subscriber, f.sink, zap.NewNop())
	return f
}

func historyRow(sender, recipient uuid.UUID, content, translated string, at time.Time) domain.MessageRow {
	row := domain.MessageRow{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Type:        domain.MessageTypeText,
		CreatedAt:   at,
	}
	if translated != "" {
		row.TranslatedContent = &translated
	}
	return row
}

func TestOpenUnauthenticated(t *testing.T) {
	f := newFixture()
	engine := NewEngine(SessionIdentity(uuid.Nil), f.store, f.prefs, f.translator, f.subscriber, f.sink, zap.NewNop())

	err := engine.Open(context.Background(), recipientID)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOpenLoadsHistoryInOrder(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(viewerID, recipientID, "hello", "hola", base),
		historyRow(recipientID, viewerID, "que tal", "", base.Add(time.Minute)),
		// Another conversation entirely; must not show up.
		historyRow(strangerID, viewerID, "psst", "", base.Add(2*time.Minute)),
	}

	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	messages := f.engine.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "hola", messages[0].Text)
	assert.Equal(t, "hello", messages[0].OriginalText)
	assert.True(t, messages[0].IsOutgoing)
	assert.Equal(t, "que tal", messages[1].Text)
	assert.Empty(t, messages[1].OriginalText)
	assert.False(t, messages[1].IsOutgoing)
}

func TestOpenIsIdempotent(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(viewerID, recipientID, "one", "uno", base),
		historyRow(recipientID, viewerID, "two", "", base.Add(time.Minute)),
	}

	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	first := f.engine.Messages()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	second := f.engine.Messages()

	assert.Equal(t, first, second)
}

func TestSendOptimisticThenPersisted(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	final, err := f.engine.Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "[es] hi", final.Text)
	assert.Equal(t, "hi", final.OriginalText)
	assert.False(t, final.IsTranslating)
	assert.True(t, final.IsOutgoing)

	messages := f.engine.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, final, messages[0])

	// Optimistic entry was visible before the persisted replacement.
	events := f.sink.all()
	assert.Contains(t, events, "append:hi")
	assert.Contains(t, events, "replace:[es] hi")

	// Persisted row carries both languages and the raw content.
	require.Len(t, f.store.rows, 1)
	row := f.store.rows[0]
	assert.Equal(t, "hi", row.Content)
	assert.Equal(t, "[es] hi", *row.TranslatedContent)
	assert.Equal(t, "en", row.SourceLanguage)
	assert.Equal(t, "es", row.TargetLanguage)
}

func TestSendMarksFirstMessage(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	_, err := f.engine.Send(context.Background(), "hi")
	require.NoError(t, err)
	_, err = f.engine.Send(context.Background(), "again")
	require.NoError(t, err)

	// Only the first send flips the flag.
	assert.Equal(t, []uuid.UUID{viewerID}, f.prefs.firstMarked)
}

func TestSendRecipientUnresolvedRollsBack(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	delete(f.prefs.prefs, recipientID)

	_, err := f.engine.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrRecipientUnresolved)

	assert.Empty(t, f.engine.Messages())
	assert.Contains(t, f.sink.all(), "remove")
}

func TestSendPersistFailureRollsBack(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(recipientID, viewerID, "existing", "", base),
	}
	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	before := f.engine.Messages()

	f.store.saveErr = errors.New("connection reset")
	_, err := f.engine.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrPersistFailed)

	// Pre-send length and content restored; translation had already
	// succeeded but nothing of it survives.
	assert.Equal(t, before, f.engine.Messages())
}

func TestSendDiscardedAfterRecipientSwitch(t *testing.T) {
	f := newFixture()
	otherID := uuid.New()
	f.prefs.prefs[otherID] = &domain.UserPreference{UserID: otherID, PreferredLanguage: "fr"}
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	// Switch conversations while the save is in flight.
	f.store.saveHook = func() {
		f.store.saveHook = nil
		require.NoError(t, f.engine.Open(context.Background(), otherID))
	}

	_, err := f.engine.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrConversationMoved)

	// The new conversation's list must not contain the stale send.
	for _, msg := range f.engine.Messages() {
		assert.NotContains(t, msg.Text, "hi")
	}
}

func TestSendDuringHistoryLoadSurvivesReplacement(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(recipientID, viewerID, "earlier", "", base),
	}

	gate := make(chan struct{})
	f.store.listGate = gate

	done := make(chan error, 1)
	go func() { done <- f.engine.Open(context.Background(), recipientID) }()
	require.Eventually(t, func() bool { return f.subscriber.last() != nil }, time.Second, 5*time.Millisecond)

	// The send completes fully while the history query is still in flight,
	// so its row is not in the query's result set.
	final, err := f.engine.Send(context.Background(), "hi")
	require.NoError(t, err)

	close(gate)
	require.NoError(t, <-done)

	messages := f.engine.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "earlier", messages[0].Text)
	assert.Equal(t, final, messages[1])
}

func TestOpenViewerPreferenceFailureFallsBackToBaseline(t *testing.T) {
	f := newFixture()
	f.prefs.prefs[viewerID].PreferredLanguage = "fr"
	f.prefs.getErr = errors.New("connection refused")

	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	f.prefs.getErr = nil

	_, err := f.engine.Send(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, f.store.rows, 1)
	assert.Equal(t, "en", f.store.rows[0].SourceLanguage)
}

func TestLiveEventAppendsIncoming(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	f.subscriber.last().events <- historyRow(recipientID, viewerID, "ping", "", time.Now())

	require.Eventually(t, func() bool {
		return len(f.engine.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ping", f.engine.Messages()[0].Text)
	assert.False(t, f.engine.Messages()[0].IsOutgoing)
}

func TestLiveEventIgnoresOtherConversations(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	// Addressed to the viewer but from a third party: belongs to another
	// conversation view, not this one.
	f.subscriber.last().events <- historyRow(strangerID, viewerID, "psst", "", time.Now())
	// The viewer's own insert echoes back; the optimistic path owns those.
	f.subscriber.last().events <- historyRow(viewerID, recipientID, "mine", "", time.Now())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.engine.Messages())
}

func TestLiveEventsBufferedDuringLoadAndDeduped(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	inHistory := historyRow(recipientID, viewerID, "already stored", "", base)
	f.store.rows = []domain.MessageRow{inHistory}

	gate := make(chan struct{})
	f.store.listGate = gate

	done := make(chan error, 1)
	go func() { done <- f.engine.Open(context.Background(), recipientID) }()

	// Wait for the subscription, then deliver one duplicate of a history
	// row and one genuinely new row while the load is still blocked.
	require.Eventually(t, func() bool { return f.subscriber.last() != nil }, time.Second, 5*time.Millisecond)
	f.subscriber.last().events <- inHistory
	f.subscriber.last().events <- historyRow(recipientID, viewerID, "fresh", "", base.Add(time.Minute))

	time.Sleep(20 * time.Millisecond)
	close(gate)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		return len(f.engine.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
	messages := f.engine.Messages()
	assert.Equal(t, "already stored", messages[0].Text)
	assert.Equal(t, "fresh", messages[1].Text)
}

func TestReopenTearsDownPreviousSubscription(t *testing.T) {
	f := newFixture()
	otherID := uuid.New()
	f.prefs.prefs[otherID] = &domain.UserPreference{UserID: otherID, PreferredLanguage: "de"}

	require.NoError(t, f.engine.Open(context.Background(), recipientID))
	first := f.subscriber.last()
	require.NoError(t, f.engine.Open(context.Background(), otherID))

	// The old handle is closed; at most one subscription stays alive.
	_, open := <-first.events
	assert.False(t, open)
	assert.Len(t, f.subscriber.subs, 2)
}

func TestRetranslateRewritesOutgoing(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(viewerID, recipientID, "one", "[es] one", base),
		historyRow(recipientID, viewerID, "incoming", "", base.Add(time.Minute)),
		historyRow(viewerID, recipientID, "two", "[es] two", base.Add(2*time.Minute)),
	}
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	updated := f.engine.Retranslate(context.Background(), "fr")
	assert.Equal(t, 2, updated)

	messages := f.engine.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "[fr] one", messages[0].Text)
	assert.Equal(t, "one", messages[0].OriginalText)
	assert.Equal(t, "incoming", messages[1].Text)
	assert.Equal(t, "[fr] two", messages[2].Text)
	assert.Equal(t, "two", messages[2].OriginalText)
}

func TestRetranslatePartialFailureLeavesOthersUpdated(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	f.store.rows = []domain.MessageRow{
		historyRow(viewerID, recipientID, "alpha", "[es] alpha", base),
		historyRow(viewerID, recipientID, "beta", "[es] beta", base.Add(time.Minute)),
		historyRow(viewerID, recipientID, "gamma", "[es] gamma", base.Add(2*time.Minute)),
	}
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	f.translator.failOn = map[string]bool{"beta": true}
	f.engine.Retranslate(context.Background(), "fr")

	messages := f.engine.Messages()
	assert.Equal(t, "[fr] alpha", messages[0].Text)
	assert.Equal(t, "beta", messages[1].Text) // degraded to passthrough
	assert.Equal(t, "[fr] gamma", messages[2].Text)
	// Originals survive either way.
	for i, want := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, want, messages[i].OriginalText)
	}
}

func TestRetranslateFallsBackToTextWithoutOriginal(t *testing.T) {
	f := newFixture()
	base := time.Now().Add(-time.Hour)
	// Never translated, so no original recorded.
	f.store.rows = []domain.MessageRow{
		historyRow(viewerID, recipientID, "plain", "", base),
	}
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	f.engine.Retranslate(context.Background(), "de")

	messages := f.engine.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "[de] plain", messages[0].Text)
	assert.Equal(t, "plain", messages[0].OriginalText)
}

func TestPendingEntryShape(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.Open(context.Background(), recipientID))

	// Block the save so the optimistic entry is observable.
	gate := make(chan struct{})
	f.store.saveHook = func() { <-gate }

	done := make(chan struct{})
	go func() {
		f.engine.Send(context.Background(), "hi")
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.engine.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	pending := f.engine.Messages()[0]
	assert.True(t, pending.IsTranslating)
	assert.True(t, pending.IsOutgoing)
	assert.Equal(t, "hi", pending.Text)
	assert.True(t, strings.HasPrefix(pending.ID, "local-"))

	close(gate)
	<-done
}
