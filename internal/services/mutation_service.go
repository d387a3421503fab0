package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultMutationConcurrency = 10

// MutationServiceImpl implements MutationService on top of a CanonicalState
type MutationServiceImpl struct {
	store       MailboxStore
	state       *CanonicalState
	concurrency int
	refetch     func(ctx context.Context)

	mu       sync.Mutex
	inflight map[string]string // message id -> batch

	logger *log.Logger
}

// NewMutationService creates a new mutation service
func NewMutationService(store MailboxStore, state *CanonicalState) *MutationServiceImpl {
	return &MutationServiceImpl{
		store:       store,
		state:       state,
		concurrency: defaultMutationConcurrency,
		inflight:    make(map[string]string),
	}
}

// SetLogger sets the logger for debug output
func (s *MutationServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetConcurrency bounds the number of concurrent SetFlag calls per mutation
func (s *MutationServiceImpl) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetRefetch installs the forced refetch run after a trash that failed for every id
func (s *MutationServiceImpl) SetRefetch(fn func(ctx context.Context)) {
	s.refetch = fn
}

// PendingMutation is a mutation whose optimistic delta is already visible
// and whose remote calls have not been dispatched yet
type PendingMutation struct {
	svc    *MutationServiceImpl
	batch  string
	kind   MutationKind
	flag   mailbox.Flag
	value  bool
	ids    []string
	deltas []Delta
}

// Batch returns the key identifying this mutation's deltas
func (p *PendingMutation) Batch() string { return p.batch }

// IDs returns the targeted ids
func (p *PendingMutation) IDs() []string { return append([]string(nil), p.ids...) }

// Kind returns the mutation kind
func (p *PendingMutation) Kind() MutationKind { return p.kind }

func flagFor(kind MutationKind) (mailbox.Flag, error) {
	switch kind {
	case MutationMarkRead:
		return mailbox.FlagRead, nil
	case MutationStar:
		return mailbox.FlagStarred, nil
	case MutationSpam:
		return mailbox.FlagSpam, nil
	case MutationArchive:
		return mailbox.FlagArchived, nil
	case MutationTrash:
		return mailbox.FlagTrash, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMutation, kind)
}

// Begin validates req, takes the per-id locks, snapshots the targets and
// applies the optimistic delta. It returns before any remote call is made.
func (s *MutationServiceImpl) Begin(ctx context.Context, req MutationRequest) (*PendingMutation, error) {
	flag, err := flagFor(req.Kind)
	if err != nil {
		return nil, err
	}
	ids := uniqueIDs(req.IDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no message ids", ErrInvalidInput)
	}
	if req.Kind == MutationStar && len(ids) > 1 {
		return nil, fmt.Errorf("star %d messages: %w", len(ids), ErrSingleTargetOnly)
	}

	s.mu.Lock()
	for _, id := range ids {
		if _, busy := s.inflight[id]; busy {
			s.mu.Unlock()
			return nil, fmt.Errorf("%s %s: %w", req.Kind, id, ErrMutationInFlight)
		}
	}

	snapshot := make(map[string]mailbox.Message, len(ids))
	for _, m := range s.state.Rendered() {
		snapshot[m.ID] = m
	}

	value := true
	switch {
	case req.Value != nil:
		value = *req.Value
	case req.Kind == MutationStar:
		m, ok := snapshot[ids[0]]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("star %s: %w", ids[0], ErrMessageNotFound)
		}
		value = !m.Starred
	}

	p := &PendingMutation{
		svc:   s,
		batch: uuid.New().String(),
		kind:  req.Kind,
		flag:  flag,
		value: value,
		ids:   ids,
	}
	for _, id := range ids {
		s.inflight[id] = p.batch
		before, ok := snapshot[id]
		if !ok {
			before = mailbox.Message{ID: id}
		}
		p.deltas = append(p.deltas, Delta{Batch: p.batch, ID: id, Flag: flag, Value: value, Before: before})
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Printf("mutation %s: begin %s ids=%d value=%t", p.batch, p.kind, len(ids), value)
	}
	s.state.Apply(p.deltas)
	return p, nil
}

// Dispatch issues one SetFlag per id concurrently, waits for all of them,
// rolls back the failed ids and reports the outcome
func (p *PendingMutation) Dispatch(ctx context.Context) *MutationOutcome {
	s := p.svc
	errs := make([]error, len(p.ids))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range p.ids {
		g.Go(func() error {
			if err := s.store.SetFlag(ctx, id, p.flag, p.value); err != nil {
				errs[i] = fmt.Errorf("set %s=%t on %s: %w", p.flag, p.value, id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &MutationOutcome{Batch: p.batch, Kind: p.kind, Value: p.value, Failed: map[string]error{}}
	for i, id := range p.ids {
		ok := errs[i] == nil
		if ok {
			out.Succeeded = append(out.Succeeded, id)
		} else {
			out.Failed[id] = errs[i]
		}
		s.state.Settle(p.batch, id, ok)
	}

	switch {
	case len(out.Failed) == 0:
		out.Status = OutcomeSucceeded
	case len(out.Succeeded) == 0:
		out.Status = OutcomeFailed
	default:
		out.Status = OutcomePartial
	}

	s.mu.Lock()
	for _, id := range p.ids {
		if s.inflight[id] == p.batch {
			delete(s.inflight, id)
		}
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Printf("mutation %s: %s %s ok=%d failed=%d", p.batch, p.kind, out.Status, out.SuccessCount(), out.FailureCount())
		for id, err := range out.Failed {
			s.logger.Printf("mutation %s: rolled back %s: %v", p.batch, id, err)
		}
	}

	if p.kind == MutationTrash && out.Status == OutcomeFailed && s.refetch != nil {
		s.refetch(ctx)
	}
	return out
}

// Mutate runs Begin and Dispatch, blocking until every remote call settled
func (s *MutationServiceImpl) Mutate(ctx context.Context, req MutationRequest) (*MutationOutcome, error) {
	p, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Dispatch(ctx), nil
}

// Send delivers an outgoing message through the store
func (s *MutationServiceImpl) Send(ctx context.Context, payload ComposePayload) error {
	if len(payload.To) == 0 {
		return ErrMissingRecipients
	}
	if err := s.store.SendMessage(ctx, payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("mutation: sent message to %d recipients", len(payload.To)+len(payload.Cc))
	}
	return nil
}

// InFlight reports whether id has an unsettled mutation
func (s *MutationServiceImpl) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

// InFlightIDs returns every locked id
func (s *MutationServiceImpl) InFlightIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for id := range s.inflight {
		out = append(out, id)
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
