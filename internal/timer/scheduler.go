// Package timer runs one-shot deadlines off a min-heap. A single worker
// goroutine exists only while at least one deadline is registered.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"duel-arena/internal/metrics"
)

type Tag string

const (
	TagTurnTimeout       Tag = "TURN_TIMEOUT"
	TagDisconnectForfeit Tag = "DISCONNECT_FORFEIT"
	TagReadyTimeout      Tag = "READY_TIMEOUT"
	TagChallengeExpiry   Tag = "CHALLENGE_EXPIRY"
	TagSettlementRetry   Tag = "SETTLEMENT_RETRY"
)

type Handle struct {
	ID       uint64
	Key      string
	Tag      Tag
	Deadline time.Time
}

func (h Handle) Valid() bool { return h.ID != 0 }

type entry struct {
	handle Handle
	fn     func()
	index  int
}

type Scheduler struct {
	mu      sync.Mutex
	queue   timerHeap
	byID    map[uint64]*entry
	nextID  uint64
	running bool
	closed  bool
	wake    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		byID: map[uint64]*entry{},
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Schedule registers fn to run once at deadline. Callbacks run on their own
// goroutine and must re-validate whatever state they act on.
func (s *Scheduler) Schedule(key string, tag Tag, deadline time.Time, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Handle{}
	}
	s.nextID++
	e := &entry{
		handle: Handle{ID: s.nextID, Key: key, Tag: tag, Deadline: deadline},
		fn:     fn,
	}
	heap.Push(&s.queue, e)
	s.byID[e.handle.ID] = e
	metrics.Get().TimersPending.Inc()
	if !s.running {
		s.running = true
		s.wg.Add(1)
		go s.run()
	} else {
		s.signal()
	}
	return e.handle
}

// Cancel reports whether the deadline was removed before it fired.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(h.ID)
}

// CancelKey cancels every pending deadline registered under key.
func (s *Scheduler) CancelKey(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, e := range s.byID {
		if e.handle.Key == key {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		s.cancelLocked(id)
	}
	return len(ids)
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// PendingFor returns the pending deadlines registered under key.
func (s *Scheduler) PendingFor(key string) []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Handle
	for _, e := range s.byID {
		if e.handle.Key == key {
			out = append(out, e.handle)
		}
	}
	return out
}

// Running reports whether the worker goroutine is alive.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the worker has exited and fired callbacks have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close drops every pending deadline and waits for running callbacks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id := range s.byID {
		s.cancelLocked(id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) cancelLocked(id uint64) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, e.index)
	delete(s.byID, id)
	metrics.Get().TimersPending.Dec()
	s.signal()
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		wait := next.handle.Deadline.Sub(s.now())
		if wait <= 0 {
			heap.Pop(&s.queue)
			delete(s.byID, next.handle.ID)
			metrics.Get().TimersPending.Dec()
			metrics.Get().TimersFired.WithLabelValues(string(next.handle.Tag)).Inc()
			s.wg.Add(1)
			s.mu.Unlock()
			go func(fn func()) {
				defer s.wg.Done()
				fn()
			}(next.fn)
			continue
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
		}
	}
}

type timerHeap []*entry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].handle.Deadline.Equal(h[j].handle.Deadline) {
		return h[i].handle.ID < h[j].handle.ID
	}
	return h[i].handle.Deadline.Before(h[j].handle.Deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
