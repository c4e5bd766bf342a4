package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"task-planner/internal/repository"
)

const (
	ownerA int64 = 1001
	userB  int64 = 2002
	userC  int64 = 3003
)

// Sunday 2025-06-15 12:00 America/New_York.
var referenceNow = time.Date(2025, time.June, 15, 16, 0, 0, 0, time.UTC)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Fired counts timers whose callback has been started.
func (c *fakeClock) Fired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.fired {
			n++
		}
	}
	return n
}

type delivery struct {
	UserID int64
	Note   Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []delivery
	fail error
	// onDeliver runs after the delivery is recorded, outside mu.
	onDeliver func(Notification)
}

func (n *recordingNotifier) Deliver(_ context.Context, userID int64, note Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, delivery{UserID: userID, Note: note})
	hook, fail := n.onDeliver, n.fail
	n.mu.Unlock()
	if hook != nil {
		hook(note)
	}
	return fail
}

func (n *recordingNotifier) Sent() []delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]delivery(nil), n.sent...)
}

func (n *recordingNotifier) OfKind(kind NotificationKind) []delivery {
	var out []delivery
	for _, d := range n.Sent() {
		if d.Note.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

type env struct {
	clock      *fakeClock
	store      repository.DocumentStore
	notifier   *recordingNotifier
	profiles   *ProfileService
	tasks      *TaskService
	reminders  *ReminderService
	delegation *DelegationService
	planner    *Planner
}

func newStore(t *testing.T) repository.DocumentStore {
	t.Helper()
	store, err := repository.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// newEnv wires a full engine over store, as main does, and starts the
// reminder scheduler.
func newEnv(t *testing.T, store repository.DocumentStore, clock *fakeClock, opts ...TaskOption) *env {
	t.Helper()
	ctx := context.Background()
	notifier := &recordingNotifier{}

	profiles, err := NewProfileService(repository.NewProfileRepository(store), "America/New_York", nil)
	require.NoError(t, err)

	opts = append([]TaskOption{WithTaskClock(clock)}, opts...)
	tasks := NewTaskService(repository.NewTaskRepository(store), profiles, opts...)
	reminders := NewReminderService(tasks, repository.NewReminderRepository(store), profiles, notifier,
		WithReminderClock(clock))
	delegation := NewDelegationService(tasks, profiles, notifier, nil, nil)
	planner := NewPlanner(tasks, delegation, reminders, profiles)

	for _, id := range []int64{ownerA, userB} {
		_, err := profiles.Ensure(ctx, id, "")
		require.NoError(t, err)
	}
	require.NoError(t, reminders.Start(ctx))
	t.Cleanup(reminders.Stop)

	return &env{
		clock:      clock,
		store:      store,
		notifier:   notifier,
		profiles:   profiles,
		tasks:      tasks,
		reminders:  reminders,
		delegation: delegation,
		planner:    planner,
	}
}

func newDefaultEnv(t *testing.T) *env {
	return newEnv(t, newStore(t), newFakeClock(referenceNow))
}

func (e *env) add(t *testing.T, owner int64, descriptions ...string) {
	t.Helper()
	for _, d := range descriptions {
		_, err := e.tasks.Add(context.Background(), owner, d)
		require.NoError(t, err)
	}
}

