package onboarding

import (
	"sort"
	"sync"
	"time"

	"github.com/charlesng35/careerhub/pkg/metrics"
)

// Scheduler runs deferred stage work keyed by user and stage.
type Scheduler interface {
	// Schedule runs task after delay. It returns false without scheduling when
	// a task for the same user and stage is already pending.
	Schedule(userID string, stage Stage, delay time.Duration, task func()) bool
	// CancelUser drops every pending task for the user and returns how many were dropped.
	CancelUser(userID string) int
	// Pending reports the number of tasks waiting to fire.
	Pending() int
	// Flush runs every pending task immediately, earliest first, on the caller's goroutine.
	Flush()
	// Stop cancels pending tasks and waits for running ones to finish.
	Stop()
}

type taskKey struct {
	userID string
	stage  Stage
}

type timerTask struct {
	timer *time.Timer
	due   time.Time
	run   func()
}

// TimerScheduler is the in-process Scheduler built on time.AfterFunc. Pending
// work lost on restart is recovered by sweeps over durable progress.
type TimerScheduler struct {
	mu      sync.Mutex
	tasks   map[taskKey]*timerTask
	running sync.WaitGroup
	stopped bool
}

// NewTimerScheduler constructs an empty scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{tasks: make(map[taskKey]*timerTask)}
}

func (s *TimerScheduler) Schedule(userID string, stage Stage, delay time.Duration, task func()) bool {
	if delay < 0 {
		delay = 0
	}
	key := taskKey{userID: userID, stage: stage}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, exists := s.tasks[key]; exists {
		return false
	}

	entry := &timerTask{due: time.Now().Add(delay), run: task}
	entry.timer = time.AfterFunc(delay, func() {
		if !s.take(key, entry) {
			return
		}
		defer s.running.Done()
		entry.run()
	})
	s.tasks[key] = entry
	metrics.PendingStages.Set(float64(len(s.tasks)))
	return true
}

// take removes entry if it is still the pending task for key and marks it running.
func (s *TimerScheduler) take(key taskKey, entry *timerTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.tasks[key] != entry {
		return false
	}
	delete(s.tasks, key)
	s.running.Add(1)
	metrics.PendingStages.Set(float64(len(s.tasks)))
	return true
}

func (s *TimerScheduler) CancelUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for key, entry := range s.tasks {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(s.tasks, key)
		cancelled++
	}
	metrics.PendingStages.Set(float64(len(s.tasks)))
	return cancelled
}

func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *TimerScheduler) Flush() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ready := make([]*timerTask, 0, len(s.tasks))
	for key, entry := range s.tasks {
		entry.timer.Stop()
		delete(s.tasks, key)
		ready = append(ready, entry)
	}
	s.running.Add(len(ready))
	metrics.PendingStages.Set(0)
	s.mu.Unlock()

	sort.SliceStable(ready, func(i, j int) bool { return ready[i].due.Before(ready[j].due) })
	for _, entry := range ready {
		entry.run()
		s.running.Done()
	}
}

func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, entry := range s.tasks {
		entry.timer.Stop()
		delete(s.tasks, key)
	}
	metrics.PendingStages.Set(0)
	s.mu.Unlock()

	s.running.Wait()
}
