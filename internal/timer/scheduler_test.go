package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- struct{}{}
		}
	}
	now := time.Now()
	s.Schedule("d1", TagTurnTimeout, now.Add(60*time.Millisecond), record("c"))
	s.Schedule("d1", TagReadyTimeout, now.Add(20*time.Millisecond), record("a"))
	s.Schedule("d2", TagTurnTimeout, now.Add(40*time.Millisecond), record("b"))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timers did not fire")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSchedulerCancelBeforeFire(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	var fired int32
	h := s.Schedule("d1", TagDisconnectForfeit, time.Now().Add(50*time.Millisecond), func() {
		atomic.AddInt32(&fired, 1)
	})
	if !s.Cancel(h) {
		t.Fatal("cancel should succeed before firing")
	}
	if s.Cancel(h) {
		t.Fatal("second cancel should report false")
	}
	s.Wait()
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("cancelled timer fired")
	}
}

func TestSchedulerWorkerStopsWhenIdle(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	if s.Running() {
		t.Fatal("worker running before any timer")
	}
	fired := make(chan struct{})
	s.Schedule("d1", TagTurnTimeout, time.Now().Add(10*time.Millisecond), func() { close(fired) })
	if !s.Running() {
		t.Fatal("worker not started by first timer")
	}
	<-fired
	s.Wait()
	if s.Running() || s.Pending() != 0 {
		t.Fatalf("worker should exit when idle: running=%v pending=%d", s.Running(), s.Pending())
	}

	again := make(chan struct{})
	s.Schedule("d1", TagTurnTimeout, time.Now(), func() { close(again) })
	select {
	case <-again:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not restart")
	}
}

func TestSchedulerFiresAtMostOnce(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	var fired int32
	var handles []Handle
	for i := 0; i < 50; i++ {
		handles = append(handles, s.Schedule("d1", TagTurnTimeout, time.Now(), func() {
			atomic.AddInt32(&fired, 1)
		}))
	}
	cancelled := 0
	for _, h := range handles {
		if s.Cancel(h) {
			cancelled++
		}
	}
	s.Wait()
	if int(atomic.LoadInt32(&fired))+cancelled != 50 {
		t.Fatalf("fired=%d cancelled=%d, want total 50", fired, cancelled)
	}
}

func TestSchedulerCancelKey(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	far := time.Now().Add(time.Hour)
	s.Schedule("d1", TagTurnTimeout, far, func() {})
	s.Schedule("d1", TagDisconnectForfeit, far, func() {})
	s.Schedule("d2", TagTurnTimeout, far, func() {})

	if n := s.CancelKey("d1"); n != 2 {
		t.Fatalf("CancelKey = %d, want 2", n)
	}
	if len(s.PendingFor("d1")) != 0 || len(s.PendingFor("d2")) != 1 {
		t.Fatal("unexpected pending timers after CancelKey")
	}
}

func TestSchedulerEarlierTimerPreemptsWait(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	s.Schedule("d1", TagTurnTimeout, time.Now().Add(time.Hour), func() {})
	fired := make(chan struct{})
	s.Schedule("d2", TagTurnTimeout, time.Now().Add(10*time.Millisecond), func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("earlier deadline waited behind a later one")
	}
}
