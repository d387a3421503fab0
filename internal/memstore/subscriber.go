package memstore

import (
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
)

type subscriberKind int

const (
	feedSubscriber subscriberKind = iota
	activitySubscriber
)

type event struct {
	batch []mailbox.Message
	err   error
	at    time.Time
}

// subscriber delivers queued events in order on its own goroutine. The queue
// is unbounded so commits never block on a slow consumer.
type subscriber struct {
	kind    subscriberKind
	deliver func(event)

	mu    sync.Mutex
	queue []event

	wake       chan struct{}
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	detach     func()
	stopOnDone func() bool
}

func newSubscriber(kind subscriberKind, deliver func(event)) *subscriber {
	return &subscriber{
		kind:    kind,
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) push(ev event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for {
			ev, ok := s.pop()
			if !ok {
				break
			}
			select {
			case <-s.stop:
				return
			default:
			}
			s.deliver(ev)
		}
	}
}

// close stops delivery without waiting
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.detach != nil {
			s.detach()
		}
	})
}

// Unsubscribe stops delivery and waits for the delivery goroutine to exit.
// It must not be called from inside a delivery callback.
func (s *subscriber) Unsubscribe() {
	if s.stopOnDone != nil {
		s.stopOnDone()
	}
	s.close()
	<-s.done
}
