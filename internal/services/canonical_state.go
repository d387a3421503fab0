package services

import (
	"log"
	"sort"
	"sync"

	"github.com/ajramos/mailsync/internal/mailbox"
)

// Generation orders writes to the canonical list. A write is accepted only
// when its generation is the latest one issued.
type Generation uint64

// Delta is an optimistic change layered over the canonical list
type Delta struct {
	Batch   string
	ID      string
	Flag    mailbox.Flag
	Value   bool
	Before  mailbox.Message
	Settled bool
}

func (d Delta) apply(m mailbox.Message) (mailbox.Message, bool) {
	if d.Flag.Removes() {
		return mailbox.Message{}, false
	}
	return mailbox.ApplyFlag(m, d.Flag, d.Value), true
}

// reflectedBy reports whether a freshly committed list already shows d
func (d Delta) reflectedBy(index map[string]int, msgs []mailbox.Message) bool {
	i, ok := index[d.ID]
	if !ok {
		return d.Flag.Removes()
	}
	return d.Flag.Reflects(msgs[i], d.Value)
}

// CanonicalState holds the list last written by the poller, the feed or a
// refresh, plus the optimistic deltas of in-flight mutations. Every write
// replaces the whole list. Readers get copies.
type CanonicalState struct {
	mu        sync.Mutex
	latest    Generation
	committed Generation
	commits   int
	messages  []mailbox.Message
	deltas    map[string]*Delta

	listenersMu sync.RWMutex
	listeners   []func()

	logger *log.Logger
}

// NewCanonicalState creates an empty state
func NewCanonicalState() *CanonicalState {
	return &CanonicalState{deltas: make(map[string]*Delta)}
}

// SetLogger sets the logger for debug output
func (s *CanonicalState) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// OnChange registers fn to run after every accepted write or overlay change.
// Callbacks run without any state lock held.
func (s *CanonicalState) OnChange(fn func()) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *CanonicalState) changed() {
	s.listenersMu.RLock()
	fns := append([]func(){}, s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Issue reserves the next generation. Call it when the asynchronous
// operation that will produce the write is started.
func (s *CanonicalState) Issue() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// Commit replaces the canonical list with msgs if gen is still the latest
// issued generation. msgs must already be reconciled.
func (s *CanonicalState) Commit(gen Generation, msgs []mailbox.Message) bool {
	s.mu.Lock()
	if gen != s.latest {
		latest := s.latest
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Printf("canonical: dropped stale write gen=%d latest=%d", gen, latest)
		}
		return false
	}
	s.commitLocked(gen, msgs)
	s.mu.Unlock()
	s.changed()
	return true
}

// Replace issues a generation and commits msgs under it in one step. Used by
// writers that are authoritative at arrival time.
func (s *CanonicalState) Replace(msgs []mailbox.Message) Generation {
	s.mu.Lock()
	s.latest++
	gen := s.latest
	s.commitLocked(gen, msgs)
	s.mu.Unlock()
	s.changed()
	return gen
}

// ReplaceIf is Replace guarded by valid, which is evaluated under the state
// lock so no other write can land between the check and the commit. valid
// must not call back into the state.
func (s *CanonicalState) ReplaceIf(valid func() bool, msgs []mailbox.Message) (Generation, bool) {
	s.mu.Lock()
	if !valid() {
		s.mu.Unlock()
		return 0, false
	}
	s.latest++
	gen := s.latest
	s.commitLocked(gen, msgs)
	s.mu.Unlock()
	s.changed()
	return gen, true
}

func (s *CanonicalState) commitLocked(gen Generation, msgs []mailbox.Message) {
	s.messages = append([]mailbox.Message(nil), msgs...)
	s.committed = gen
	s.commits++

	index := make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		index[m.ID] = i
	}
	for id, d := range s.deltas {
		if d.Settled || d.reflectedBy(index, s.messages) {
			delete(s.deltas, id)
		}
	}
	if s.logger != nil {
		s.logger.Printf("canonical: committed gen=%d messages=%d pending=%d", gen, len(s.messages), len(s.deltas))
	}
}

// Apply layers deltas over the canonical list
func (s *CanonicalState) Apply(deltas []Delta) {
	if len(deltas) == 0 {
		return
	}
	s.mu.Lock()
	for i := range deltas {
		d := deltas[i]
		s.deltas[d.ID] = &d
	}
	s.mu.Unlock()
	s.changed()
}

// Settle resolves the delta of id created by batch. A failed delta is
// dropped so the canonical value shows again; a confirmed one stays until
// the next canonical write.
func (s *CanonicalState) Settle(batch, id string, ok bool) {
	s.mu.Lock()
	d, found := s.deltas[id]
	if !found || d.Batch != batch {
		s.mu.Unlock()
		return
	}
	if ok {
		d.Settled = true
		s.mu.Unlock()
		return
	}
	delete(s.deltas, id)
	s.mu.Unlock()
	s.changed()
}

// Rendered returns applyDeltas(canonical, deltas)
func (s *CanonicalState) Rendered() []mailbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mailbox.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if d, ok := s.deltas[m.ID]; ok {
			var keep bool
			if m, keep = d.apply(m); !keep {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// Lookup returns the rendered message with id
func (s *CanonicalState) Lookup(id string) (mailbox.Message, bool) {
	for _, m := range s.Rendered() {
		if m.ID == id {
			return m, true
		}
	}
	return mailbox.Message{}, false
}

// Canonical returns a copy of the last committed list without deltas
func (s *CanonicalState) Canonical() []mailbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailbox.Message(nil), s.messages...)
}

// Len is the size of the canonical list
func (s *CanonicalState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Committed reports whether any write has been accepted
func (s *CanonicalState) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits > 0
}

// Generations returns the latest issued and the last committed generation
func (s *CanonicalState) Generations() (latest, committed Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.committed
}

// Deltas returns the pending overlay ordered by id
func (s *CanonicalState) Deltas() []Delta {
	s.mu.Lock()
	out := make([]Delta, 0, len(s.deltas))
	for _, d := range s.deltas {
		out = append(out, *d)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
