// Package alert tracks per-account consecutive ingestion failures and
// emits failure, sustained-failure and recovery events.
package alert

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event names, stable identifiers consumed by downstream alerting.
const (
	EventFailure   = "alert.ofx.failure"
	EventSustained = "alert.ofx.sustained"
	EventRecovered = "alert.ofx.recovered"
)

// DefaultSustainedThreshold is the streak length at which a failure is
// considered a sustained outage.
const DefaultSustainedThreshold = 3

// Key identifies one failure streak. Streaks are independent: a failure
// on one account never touches another account's counter, even for the
// same client.
type Key struct {
	ClientID      string
	BankAccountID string
}

// State is one key's streak. Created lazily on the first observed
// outcome and never explicitly destroyed; cardinality is bounded by the
// number of distinct accounts ever seen.
type State struct {
	ConsecutiveErrors int
	LastBankName      string
}

// StateStore holds streak state. Injected rather than package-global so
// tests can reset state and multiple instances don't share it.
type StateStore interface {
	// Get returns the current state for key (zero value when unseen).
	Get(key Key) State
	// Update applies fn to the current state atomically and returns
	// the state it produced.
	Update(key Key, fn func(State) State) State
}

// MemoryStore is the default mutex-guarded StateStore.
type MemoryStore struct {
	mu     sync.Mutex
	states map[Key]State
}

// NewMemoryStore creates an empty state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]State)}
}

// Get implements StateStore.
func (s *MemoryStore) Get(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key]
}

// Update implements StateStore.
func (s *MemoryStore) Update(key Key, fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.states[key])
	s.states[key] = next
	return next
}

// Event is one emitted alert. BankName arrives already PII-masked from
// the caller.
type Event struct {
	Name          string
	ClientID      string
	BankAccountID string
	BankName      string
	Context       map[string]any
}

// Notifier delivers events to whatever alerting sink is wired in.
type Notifier interface {
	Notify(event Event)
}

// LogNotifier emits events as structured log lines.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a zerolog-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier. Sustained outages log at error level,
// everything else at warn.
func (n *LogNotifier) Notify(event Event) {
	entry := n.log.Warn()
	if event.Name == EventSustained {
		entry = n.log.Error()
	}
	entry.
		Str("event", event.Name).
		Str("clientId", event.ClientID).
		Str("bankAccountId", event.BankAccountID).
		Str("bankName", event.BankName).
		Interface("context", event.Context).
		Msg("ofx ingestion alert")
}

// Tracker is the consecutive-failure state machine.
type Tracker struct {
	store     StateStore
	notifier  Notifier
	threshold int
}

// NewTracker creates a tracker. A threshold < 1 falls back to the
// default.
func NewTracker(store StateStore, notifier Notifier, threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultSustainedThreshold
	}
	return &Tracker{store: store, notifier: notifier, threshold: threshold}
}

// Record feeds one ingestion outcome into the streak for
// (clientID, bankAccountID) and emits the resulting events:
//
//   - success on a zero streak: nothing (steady healthy state)
//   - success on a non-zero streak: one recovered event carrying the
//     previous streak length, then the counter resets
//   - failure: the counter increments and a failure event fires; at or
//     past the threshold a sustained event additionally fires on every
//     failure, not only at the crossing
func (t *Tracker) Record(clientID, bankAccountID, bankName string, success bool) {
	key := Key{ClientID: clientID, BankAccountID: bankAccountID}

	var previous int
	next := t.store.Update(key, func(state State) State {
		previous = state.ConsecutiveErrors
		if success {
			state.ConsecutiveErrors = 0
		} else {
			state.ConsecutiveErrors++
		}
		state.LastBankName = bankName
		return state
	})

	if success {
		if previous > 0 {
			t.notifier.Notify(Event{
				Name:          EventRecovered,
				ClientID:      clientID,
				BankAccountID: bankAccountID,
				BankName:      bankName,
				Context:       map[string]any{"previousConsecutiveErrors": previous},
			})
		}
		return
	}

	t.notifier.Notify(Event{
		Name:          EventFailure,
		ClientID:      clientID,
		BankAccountID: bankAccountID,
		BankName:      bankName,
		Context:       map[string]any{"consecutiveErrors": next.ConsecutiveErrors},
	})
	if next.ConsecutiveErrors >= t.threshold {
		t.notifier.Notify(Event{
			Name:          EventSustained,
			ClientID:      clientID,
			BankAccountID: bankAccountID,
			BankName:      bankName,
			Context:       map[string]any{"consecutiveErrors": next.ConsecutiveErrors},
		})
	}
}
