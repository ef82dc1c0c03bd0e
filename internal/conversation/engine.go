package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/chigogiggs/converse/internal/translate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnauthenticated     = errors.New("no authenticated user")
	ErrRecipientUnresolved = errors.New("recipient language preference not found")
	ErrPersistFailed       = errors.New("message persist failed")
	ErrNoConversation      = errors.New("no active conversation")
	ErrConversationMoved   = errors.New("conversation changed while send was in flight")
)

const retranslateWorkers = 4

// Identity resolves the current viewer. Implementations fail closed:
// no session means uuid.Nil, not an error the engine has to interpret.
type Identity interface {
	CurrentUser(ctx context.Context) (uuid.UUID, error)
}

// Store is the slice of the message store the engine needs.
type Store interface {
	ListConversation(ctx context.Context, userA, userB uuid.UUID) ([]domain.MessageRow, error)
	Save(ctx context.Context, msg *domain.MessageRow) error
}

// Preferences reads per-user language preference rows.
type Preferences interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error)
	MarkFirstMessageSent(ctx context.Context, userID uuid.UUID) error
}

// Translator is the best-effort translation capability. It never fails;
// see translate.Gateway.
type Translator interface {
	Translate(ctx context.Context, text, targetCode string) translate.Result
}

// Subscription is an owned live-event handle. Close releases it; Events is
// closed afterwards.
type Subscription interface {
	Events() <-chan domain.MessageRow
	Close()
}

// Subscriber opens live subscriptions for rows addressed to one user.
type Subscriber interface {
	Subscribe(userID uuid.UUID) (Subscription, error)
}

// Sink receives view updates as the engine mutates its list. Calls are made
// with the engine lock held, so implementations must not call back in.
type Sink interface {
	HistoryLoaded(messages []Message)
	MessageAppended(msg Message)
	MessageReplaced(localID string, msg Message)
	MessageRemoved(localID string)
}

// Engine owns the ordered in-memory message list for one (viewer, recipient)
// pair and keeps it live. It is the only writer of that list. A single mutex
// gives the cooperative single-actor semantics: history load, sends and live
// events all serialize on it.
type Engine struct {
	identity   Identity
	store      Store
	prefs      Preferences
	translator Translator
	subscriber Subscriber
	sink       Sink
	logger     *zap.Logger

	mu          sync.Mutex
	viewerID    uuid.UUID
	viewerLang  string
	firstSent   bool
	recipientID uuid.UUID
	// epoch is bumped every time the active recipient changes. In-flight
	// work captures the epoch it started under and discards its result on
	// mismatch, so a stale send or event can never leak into the next
	// conversation's list.
	epoch    uint64
	loaded   bool
	messages []Message
	buffered []domain.MessageRow
	seen     map[string]struct{}
	sub      Subscription
}

func NewEngine(identity Identity, store Store, prefs Preferences, translator Translator, subscriber Subscriber, sink Sink, logger *zap.Logger) *Engine {
	return &Engine{
		identity:   identity,
		store:      store,
		prefs:      prefs,
		translator: translator,
		subscriber: subscriber,
		sink:       sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Open activates the conversation with recipientID: tears down any previous
// subscription, opens exactly one new one, loads history and replaces the
// in-memory list atomically. Live events arriving while the load is in
// flight are buffered and replayed after it, de-duplicated by persisted id;
// messages sent while it is in flight survive the replacement.
func (e *Engine) Open(ctx context.Context, recipientID uuid.UUID) error {
	viewerID, err := e.identity.CurrentUser(ctx)
	if err != nil || viewerID == uuid.Nil {
		return ErrUnauthenticated
	}

	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	if e.sub != nil {
		e.sub.Close()
		e.sub = nil
	}
	e.viewerID = viewerID
	e.recipientID = recipientID
	e.loaded = false
	e.messages = nil
	e.buffered = nil
	e.seen = make(map[string]struct{})
	e.mu.Unlock()

	// The viewer's own language doubles as the source language on sends.
	viewerLang := translate.DefaultLanguageCode
	firstSent := false
	pref, err := e.prefs.Get(ctx, viewerID)
	switch {
	case err != nil:
		e.logger.Warn("loading viewer preference, falling back to baseline",
			zap.String("viewer_id", viewerID.String()), zap.Error(err))
	case pref != nil:
		viewerLang = pref.PreferredLanguage
		firstSent = pref.HasSentFirstMessage
	}
	e.mu.Lock()
	if e.epoch == epoch {
		e.viewerLang = viewerLang
		e.firstSent = firstSent
	}
	e.mu.Unlock()

	// Subscribe before loading so nothing falls into the gap between the
	// two; events land in the buffer until the load resolves.
	sub, err := e.subscriber.Subscribe(viewerID)
	if err != nil {
		return fmt.Errorf("opening subscription: %w", err)
	}
	go e.pump(epoch, sub)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		sub.Close()
		return nil
	}
	e.sub = sub
	e.mu.Unlock()

	rows, err := e.store.ListConversation(ctx, viewerID, recipientID)
	if err != nil {
		sub.Close()
		return fmt.Errorf("loading history: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}

	// Sends racing the load have already appended to the list under this
	// epoch; carry anything the query snapshot missed across the replacement.
	prior := e.messages
	e.messages = make([]Message, 0, len(rows)+len(prior))
	loaded := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		id := row.ID.String()
		loaded[id] = struct{}{}
		e.seen[id] = struct{}{}
		e.messages = append(e.messages, ToDisplay(row, viewerID))
	}
	for _, msg := range prior {
		if _, dup := loaded[msg.ID]; dup {
			continue
		}
		e.messages = append(e.messages, msg)
	}
	for _, row := range e.buffered {
		e.appendLiveLocked(row)
	}
	e.buffered = nil
	e.loaded = true

	if e.sink != nil {
		e.sink.HistoryLoaded(e.snapshotLocked())
	}
	return nil
}

// Send performs the optimistic two-phase send. The local entry is visible
// (and the Sink notified) before any network step runs. Failure at any step
// removes the entry entirely; no partial state survives.
func (e *Engine) Send(ctx context.Context, text string) (Message, error) {
	e.mu.Lock()
	if e.recipientID == uuid.Nil {
		e.mu.Unlock()
		return Message{}, ErrNoConversation
	}
	epoch := e.epoch
	viewerID := e.viewerID
	recipientID := e.recipientID
	sourceLang := e.viewerLang

	pending := Message{
		ID:            "local-" + uuid.NewString(),
		Text:          text,
		IsOutgoing:    true,
		Timestamp:     time.Now().Local().Format(timeFormat),
		IsTranslating: true,
		SenderID:      viewerID.String(),
		Type:          domain.MessageTypeText,
	}
	e.messages = append(e.messages, pending)
	if e.sink != nil {
		e.sink.MessageAppended(pending)
	}
	e.mu.Unlock()

	pref, err := e.prefs.Get(ctx, recipientID)
	if err != nil {
		e.rollback(epoch, pending.ID)
		return Message{}, fmt.Errorf("%w: %w", ErrRecipientUnresolved, err)
	}
	if pref == nil {
		// The engine does not invent a recipient language; that fallback
		// belongs to the translation gateway alone.
		e.rollback(epoch, pending.ID)
		return Message{}, ErrRecipientUnresolved
	}

	result := e.translator.Translate(ctx, text, pref.PreferredLanguage)

	row := &domain.MessageRow{
		SenderID:          viewerID,
		RecipientID:       recipientID,
		Content:           text,
		TranslatedContent: &result.Text,
		SourceLanguage:    sourceLang,
		TargetLanguage:    pref.PreferredLanguage,
		Type:              domain.MessageTypeText,
	}
	if err := e.store.Save(ctx, row); err != nil {
		e.rollback(epoch, pending.ID)
		return Message{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	e.mu.Lock()
	if e.epoch != epoch {
		// Recipient switched while the save was in flight. The row is
		// persisted, but its display form must not reach the new list.
		e.mu.Unlock()
		return Message{}, ErrConversationMoved
	}
	final := ToDisplay(*row, viewerID)
	replaced := false
	for i := range e.messages {
		if e.messages[i].ID == pending.ID {
			e.messages[i] = final
			replaced = true
			break
		}
	}
	e.seen[final.ID] = struct{}{}
	if replaced && e.sink != nil {
		e.sink.MessageReplaced(pending.ID, final)
	}
	markFirst := !e.firstSent
	e.firstSent = true
	e.mu.Unlock()

	if markFirst {
		if err := e.prefs.MarkFirstMessageSent(ctx, viewerID); err != nil {
			e.logger.Warn("marking first message sent", zap.Error(err))
		}
	}
	return final, nil
}

// Retranslate re-renders every outgoing message into targetCode, using each
// message's original text (or its current text when none is recorded).
// The calls run independently; one degraded translation leaves the others
// updated. Returns how many messages were rewritten.
func (e *Engine) Retranslate(ctx context.Context, targetCode string) int {
	type job struct {
		id     string
		source string
	}

	e.mu.Lock()
	epoch := e.epoch
	viewerID := e.viewerID
	var jobs []job
	for _, msg := range e.messages {
		if !msg.IsOutgoing || msg.IsTranslating {
			continue
		}
		source := msg.OriginalText
		if source == "" {
			source = msg.Text
		}
		jobs = append(jobs, job{id: msg.ID, source: source})
	}
	e.mu.Unlock()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		updated int
	)
	g.SetLimit(retranslateWorkers)
	for _, j := range jobs {
		g.Go(func() error {
			result := e.translator.Translate(ctx, j.source, targetCode)

			e.mu.Lock()
			defer e.mu.Unlock()
			if e.epoch != epoch {
				return nil
			}
			for i := range e.messages {
				if e.messages[i].ID != j.id {
					continue
				}
				e.messages[i].Text = result.Text
				e.messages[i].OriginalText = j.source
				if e.sink != nil {
					e.sink.MessageReplaced(j.id, e.messages[i])
				}
				mu.Lock()
				updated++
				mu.Unlock()
				break
			}
			return nil
		})
	}
	g.Wait()

	e.logger.Info("retranslated conversation",
		zap.String("viewer_id", viewerID.String()),
		zap.String("target", targetCode),
		zap.Int("updated", updated),
		zap.Int("total", len(jobs)))
	return updated
}

// Messages returns a snapshot of the current ordered list.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close tears down the live subscription and clears state. The engine can
// be reused with another Open.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	if e.sub != nil {
		e.sub.Close()
		e.sub = nil
	}
	e.recipientID = uuid.Nil
	e.loaded = false
	e.messages = nil
	e.buffered = nil
}

func (e *Engine) pump(epoch uint64, sub Subscription) {
	for row := range sub.Events() {
		e.applyLive(epoch, row)
	}
}

// applyLive handles one remote insert. Only incoming messages are applied:
// the viewer's own inserts arrive through the optimistic path and would
// duplicate here.
func (e *Engine) applyLive(epoch uint64, row domain.MessageRow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	if row.RecipientID != e.viewerID || row.SenderID == e.viewerID {
		return
	}
	// Only the active conversation's messages belong in the list.
	if row.SenderID != e.recipientID {
		return
	}
	if !e.loaded {
		e.buffered = append(e.buffered, row)
		return
	}
	e.appendLiveLocked(row)
}

func (e *Engine) appendLiveLocked(row domain.MessageRow) {
	id := row.ID.String()
	if _, dup := e.seen[id]; dup {
		return
	}
	e.seen[id] = struct{}{}
	msg := ToDisplay(row, e.viewerID)
	e.messages = append(e.messages, msg)
	if e.loaded && e.sink != nil {
		e.sink.MessageAppended(msg)
	}
}

func (e *Engine) rollback(epoch uint64, localID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	for i := range e.messages {
		if e.messages[i].ID == localID {
			e.messages = append(e.messages[:i], e.messages[i+1:]...)
			if e.sink != nil {
				e.sink.MessageRemoved(localID)
			}
			return
		}
	}
}

func (e *Engine) snapshotLocked() []Message {
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}
