package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// Subscriber receives post-commit notifications. Handlers run on a
// goroutine owned by the subscription, in commit order, after the record is
// already visible to readers. Nil handlers are skipped.
type Subscriber struct {
	Name            string
	OnInteraction   func(events.Interaction)
	OnOutcome       func(events.Outcome)
	OnTestUpdated   func(ABTest)
	OnFunnelDefined func(FunnelDefinition)
}

type subscription struct {
	sub  Subscriber
	log  *zap.Logger
	mu   sync.Mutex
	cond *sync.Cond

	queue  []func()
	closed bool
	done   chan struct{}
}

func newSubscription(sub Subscriber, log *zap.Logger) *subscription {
	s := &subscription{
		sub:  sub,
		log:  log.With(zap.String("subscriber", sub.Name)),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *subscription) push(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, fn := range batch {
			s.deliver(fn)
		}
	}
}

func (s *subscription) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// close stops accepting notifications and waits for the queue to drain.
func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	<-s.done
}

type notifier struct {
	log  *zap.Logger
	mu   sync.RWMutex
	next int
	subs map[int]*subscription
}

func newNotifier(log *zap.Logger) *notifier {
	return &notifier{log: log, subs: make(map[int]*subscription)}
}

func (n *notifier) subscribe(sub Subscriber) func() {
	s := newSubscription(sub, n.log)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = s
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			s.close()
		})
	}
}

func (n *notifier) each(fn func(*subscription)) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, s := range n.subs {
		fn(s)
	}
}

func (n *notifier) interactionRecorded(i events.Interaction) {
	n.each(func(s *subscription) {
		if h := s.sub.OnInteraction; h != nil {
			s.push(func() { h(i) })
		}
	})
}

func (n *notifier) outcomeRecorded(o events.Outcome) {
	n.each(func(s *subscription) {
		if h := s.sub.OnOutcome; h != nil {
			s.push(func() { h(o) })
		}
	})
}

func (n *notifier) testUpdated(t ABTest) {
	n.each(func(s *subscription) {
		if h := s.sub.OnTestUpdated; h != nil {
			s.push(func() { h(t) })
		}
	})
}

func (n *notifier) funnelDefined(d FunnelDefinition) {
	n.each(func(s *subscription) {
		if h := s.sub.OnFunnelDefined; h != nil {
			s.push(func() { h(d) })
		}
	})
}

// flush blocks until every notification queued so far has been handled.
func (n *notifier) flush() {
	var wg sync.WaitGroup
	n.each(func(s *subscription) {
		wg.Add(1)
		s.push(wg.Done)
	})
	wg.Wait()
}

func (n *notifier) close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[int]*subscription)
	n.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
