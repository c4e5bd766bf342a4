package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/timeparse"
)

const deliveryTimeout = 15 * time.Second

// LocationResolver returns the timezone used to read a user's expressions.
type LocationResolver interface {
	Location(ctx context.Context, userID int64) (*time.Location, error)
}

// ReconcileResult summarizes one startup reconciliation.
type ReconcileResult struct {
	Restored int
	Expired  int
	Stale    int
}

// reminderEntry is one live timer. Entries are data only; every callback
// goes through fire, which checks gen against the table.
type reminderEntry struct {
	reminderID string
	ownerID    int64
	taskID     int
	fireAt     time.Time
	gen        uint64
	timer      Timer
}

// ReminderService schedules, persists, restores and fires task reminders.
// The durable ledger is the source of truth; the timer table is rebuilt
// from it by Start.
type ReminderService struct {
	tasks    *TaskService
	repo     *repository.ReminderRepository
	zones    LocationResolver
	parser   *timeparse.Parser
	notifier Notifier
	clock    Clock
	metrics  *metrics.Metrics
	logger   logging.Logger

	mu       sync.Mutex
	entries  map[string]*reminderEntry
	gen      uint64
	started  bool
	stopped  bool
	stopOnce sync.Once
}

type ReminderOption func(*ReminderService)

func WithReminderClock(c Clock) ReminderOption {
	return func(s *ReminderService) { s.clock = c }
}

func WithReminderParser(p *timeparse.Parser) ReminderOption {
	return func(s *ReminderService) { s.parser = p }
}

func WithReminderMetrics(m *metrics.Metrics) ReminderOption {
	return func(s *ReminderService) { s.metrics = m }
}

func WithReminderLogger(l logging.Logger) ReminderOption {
	return func(s *ReminderService) { s.logger = logging.OrNop(l) }
}

// NewReminderService wires the scheduler and registers it as the task
// service's observer.
func NewReminderService(tasks *TaskService, repo *repository.ReminderRepository, zones LocationResolver, notifier Notifier, opts ...ReminderOption) *ReminderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &ReminderService{
		tasks:    tasks,
		repo:     repo,
		zones:    zones,
		parser:   timeparse.New(),
		notifier: notifier,
		clock:    SystemClock{},
		logger:   logging.Nop(),
		entries:  make(map[string]*reminderEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	tasks.SetObserver(s)
	return s
}

// Start reconciles the durable ledger and begins accepting schedules.
func (s *ReminderService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	res, err := s.Reconcile(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("reminders: restored %d, dropped %d expired and %d stale", res.Restored, res.Expired, res.Stale)
	return nil
}

// Reconcile drops records that are due or point at missing or completed
// tasks and registers timers for the rest. Due records are never fired.
func (s *ReminderService) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return res, persistence("load reminders", err)
	}

	now := s.clock.Now()
	for _, rec := range records {
		if !rec.FireAt.After(now) {
			s.dropRecord(ctx, rec.ReminderID)
			s.metrics.ReminderDropped("expired")
			res.Expired++
			continue
		}
		err := s.tasks.WithOwner(ctx, rec.OwnerID, func(list *model.TaskList) error {
			idx := list.Find(rec.TaskID)
			if idx < 0 || list.Tasks[idx].Completed {
				s.dropRecord(ctx, rec.ReminderID)
				s.metrics.ReminderDropped("stale")
				res.Stale++
				return nil
			}
			s.register(rec)
			res.Restored++
			return nil
		})
		if err != nil {
			s.logger.Warn("reminders: reconcile %s: %v", rec.ReminderID, err)
		}
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return res, nil
}

// Stop cancels every live timer. Safe to call multiple times.
func (s *ReminderService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, e := range s.entries {
			e.timer.Stop()
			delete(s.entries, id)
		}
		s.stopped = true
		s.started = false
		s.metrics.SetPendingReminders(0)
		s.logger.Info("reminders: scheduler stopped")
	})
}

// SetReminder parses expr in the owner's timezone and schedules it.
func (s *ReminderService) SetReminder(ctx context.Context, ownerID int64, taskID int, expr string) (model.Reminder, error) {
	loc, err := s.zones.Location(ctx, ownerID)
	if err != nil {
		return model.Reminder{}, err
	}
	fireAt, err := s.parser.Parse(expr, s.clock.Now(), loc)
	if err != nil {
		return model.Reminder{}, err
	}
	return s.Schedule(ctx, ownerID, taskID, fireAt)
}

// Schedule persists a reminder and registers its timer. Scheduling the
// same (owner, task, instant) again replaces the earlier timer.
func (s *ReminderService) Schedule(ctx context.Context, ownerID int64, taskID int, fireAt time.Time) (model.Reminder, error) {
	if !s.accepting() {
		return model.Reminder{}, ErrNotStarted
	}
	fireAt = fireAt.UTC().Truncate(time.Second)
	now := s.clock.Now()
	if !fireAt.After(now) {
		return model.Reminder{}, ErrInPast
	}

	rec := model.Reminder{
		ReminderID: model.ReminderID(ownerID, taskID, fireAt),
		OwnerID:    ownerID,
		TaskID:     taskID,
		FireAt:     fireAt,
		CreatedAt:  now.UTC(),
	}
	err := s.tasks.WithOwner(ctx, ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		if list.Tasks[idx].Completed {
			return ErrTaskCompleted
		}
		if err := s.repo.Save(ctx, rec); err != nil {
			return persistence("save reminder", err)
		}
		s.register(rec)
		return nil
	})
	if err != nil {
		return model.Reminder{}, err
	}
	s.metrics.ReminderScheduled()
	s.logger.Debug("reminders: scheduled %s at %s", rec.ReminderID, rec.FireAt.Format(time.RFC3339))
	return rec, nil
}

// Snooze supersedes a reminder with a new one at now + duration.
func (s *ReminderService) Snooze(ctx context.Context, reminderID, expr string) (model.Reminder, error) {
	d, err := timeparse.ParseDuration(expr)
	if err != nil {
		return model.Reminder{}, err
	}
	ownerID, taskID, _, err := model.ParseReminderID(reminderID)
	if err != nil {
		return model.Reminder{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	// A pending record is authoritative; a fired one is gone and the id
	// still names its task.
	rec, err := s.repo.Get(ctx, reminderID)
	switch {
	case err == nil:
		ownerID, taskID = rec.OwnerID, rec.TaskID
	case !errors.Is(err, repository.ErrNotFound):
		return model.Reminder{}, persistence("load reminder", err)
	}
	if !s.accepting() {
		return model.Reminder{}, ErrNotStarted
	}

	s.unregister(reminderID)
	s.dropRecord(ctx, reminderID)

	return s.Schedule(ctx, ownerID, taskID, s.clock.Now().Add(d))
}

// ListPending returns the owner's durable reminders ordered by fire time.
func (s *ReminderService) ListPending(ctx context.Context, ownerID int64) ([]model.Reminder, error) {
	recs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, persistence("list reminders", err)
	}
	return recs, nil
}

// ListAll returns the whole durable ledger.
func (s *ReminderService) ListAll(ctx context.Context) ([]model.Reminder, error) {
	recs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, persistence("list reminders", err)
	}
	return recs, nil
}

// CancelTask cancels every reminder of one task.
func (s *ReminderService) CancelTask(ctx context.Context, ownerID int64, taskID int) int {
	n := 0
	_ = s.tasks.WithOwner(ctx, ownerID, func(*model.TaskList) error {
		n = s.cancelTask(ctx, ownerID, taskID)
		return nil
	})
	return n
}

// CancelOwner cancels every reminder of an owner.
func (s *ReminderService) CancelOwner(ctx context.Context, ownerID int64) int {
	n := 0
	_ = s.tasks.WithOwner(ctx, ownerID, func(*model.TaskList) error {
		n = s.cancelOwner(ctx, ownerID)
		return nil
	})
	return n
}

// Pending reports the number of live timers.
func (s *ReminderService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TaskDeleted cancels the deleted task's reminders and moves reminders of
// later tasks to their new ids.
func (s *ReminderService) TaskDeleted(ctx context.Context, ownerID int64, deleted model.Task) {
	recs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Warn("reminders: list for %d after delete: %v", ownerID, err)
		return
	}
	// Lower ids first so a shifted record never lands on one not yet moved.
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].TaskID < recs[j].TaskID })
	for _, rec := range recs {
		switch {
		case rec.TaskID == deleted.TaskID:
			s.unregister(rec.ReminderID)
			s.dropRecord(ctx, rec.ReminderID)
		case rec.TaskID > deleted.TaskID:
			s.rekey(ctx, rec, rec.TaskID-1)
		}
	}
}

func (s *ReminderService) TaskCompleted(ctx context.Context, ownerID int64, taskID int) {
	s.cancelTask(ctx, ownerID, taskID)
}

func (s *ReminderService) TasksCleared(ctx context.Context, ownerID int64) {
	s.cancelOwner(ctx, ownerID)
}

// rekey writes the shifted record before removing the old one and always
// re-arms it. A non-positive delay fires at once.
func (s *ReminderService) rekey(ctx context.Context, rec model.Reminder, taskID int) {
	moved := rec
	moved.TaskID = taskID
	moved.ReminderID = model.ReminderID(rec.OwnerID, taskID, rec.FireAt)
	if err := s.repo.Save(ctx, moved); err != nil {
		s.logger.Warn("reminders: rekey %s: %v", rec.ReminderID, err)
		return
	}
	s.unregister(rec.ReminderID)
	s.dropRecord(ctx, rec.ReminderID)
	// A due record may belong to a callback blocked on the owner lock; that
	// callback will find its entry gone, so the moved one fires instead.
	s.register(moved)
}

func (s *ReminderService) cancelTask(ctx context.Context, ownerID int64, taskID int) int {
	recs, err := s.repo.ListByTask(ctx, ownerID, taskID)
	if err != nil {
		s.logger.Warn("reminders: list for %d/#%d: %v", ownerID, taskID, err)
		return 0
	}
	return s.cancelRecords(ctx, recs)
}

func (s *ReminderService) cancelOwner(ctx context.Context, ownerID int64) int {
	recs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Warn("reminders: list for %d: %v", ownerID, err)
		return 0
	}
	return s.cancelRecords(ctx, recs)
}

func (s *ReminderService) cancelRecords(ctx context.Context, recs []model.Reminder) int {
	for _, rec := range recs {
		s.unregister(rec.ReminderID)
		s.dropRecord(ctx, rec.ReminderID)
	}
	return len(recs)
}

func (s *ReminderService) accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// register installs or replaces the timer for rec.
func (s *ReminderService) register(rec model.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.entries[rec.ReminderID]; ok {
		old.timer.Stop()
	}
	s.gen++
	entry := &reminderEntry{
		reminderID: rec.ReminderID,
		ownerID:    rec.OwnerID,
		taskID:     rec.TaskID,
		fireAt:     rec.FireAt,
		gen:        s.gen,
	}
	id, gen := entry.reminderID, entry.gen
	entry.timer = s.clock.AfterFunc(rec.FireAt.Sub(s.clock.Now()), func() { s.fire(id, gen) })
	s.entries[rec.ReminderID] = entry
	s.metrics.SetPendingReminders(len(s.entries))
}

func (s *ReminderService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.timer.Stop()
		delete(s.entries, id)
		s.metrics.SetPendingReminders(len(s.entries))
	}
}

// claim removes the entry if it is still the one the callback was armed for.
func (s *ReminderService) claim(id string, gen uint64) (*reminderEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		return nil, false
	}
	delete(s.entries, id)
	s.metrics.SetPendingReminders(len(s.entries))
	return e, true
}

func (s *ReminderService) peek(id string, gen uint64) (*reminderEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		return nil, false
	}
	return e, true
}

var errSuperseded = errors.New("reminder superseded")

// fire is the single timer callback. Errors are logged, never returned.
func (s *ReminderService) fire(id string, gen uint64) {
	ctx := context.Background()
	entry, ok := s.peek(id, gen)
	if !ok {
		return
	}

	// The record is destroyed under the owner lock, before delivery, so a
	// renumber running during delivery cannot move it.
	var task *model.Task
	err := s.tasks.WithOwner(ctx, entry.ownerID, func(list *model.TaskList) error {
		if _, ok := s.claim(id, gen); !ok {
			return errSuperseded
		}
		s.dropRecord(ctx, id)
		if idx := list.Find(entry.taskID); idx >= 0 && !list.Tasks[idx].Completed {
			t := list.Tasks[idx]
			task = &t
		}
		return nil
	})
	switch {
	case errors.Is(err, errSuperseded):
		return
	case err != nil:
		s.logger.Warn("reminders: re-read task for %s: %v", id, err)
		s.metrics.ReminderFired("failed")
		if _, claimed := s.claim(id, gen); claimed {
			s.dropRecord(ctx, id)
		}
		return
	}

	if task == nil {
		s.metrics.ReminderFired("discarded")
		return
	}

	note := Notification{
		Kind:       KindReminder,
		Title:      "Reminder",
		Body:       task.Description,
		Task:       &TaskRef{OwnerID: entry.ownerID, TaskID: task.TaskID, Description: task.Description},
		ReminderID: id,
		Actions:    []string{ActionComplete, ActionSnooze},
	}
	dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	err = s.notifier.Deliver(dctx, entry.ownerID, note)
	cancel()
	s.metrics.Delivery(string(KindReminder), err)
	if err != nil {
		s.logger.Warn("reminders: deliver %s: %v", id, err)
		s.metrics.ReminderFired("failed")
	} else {
		s.metrics.ReminderFired("delivered")
	}
}

func (s *ReminderService) dropRecord(ctx context.Context, id string) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warn("reminders: delete record %s: %v", id, err)
	}
}
