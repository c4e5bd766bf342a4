// Package metrics exports task and reminder engine counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "task_planner"

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	taskOps          *prometheus.CounterVec
	remindersSet     prometheus.Counter
	remindersFired   *prometheus.CounterVec
	remindersDropped *prometheus.CounterVec
	remindersPending prometheus.Gauge
	deliveries       *prometheus.CounterVec
	digestRuns       prometheus.Counter
	ephemeralExpired prometheus.Counter
}

// New registers the engine collectors on reg. Collectors already registered
// by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error

	if m.taskOps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_operations_total",
		Help:      "Task store operations by kind and result.",
	}, []string{"op", "result"})); err != nil {
		return nil, err
	}
	if m.remindersSet, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_scheduled_total",
		Help:      "Reminders persisted and registered with a timer.",
	})); err != nil {
		return nil, err
	}
	if m.remindersFired, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_fired_total",
		Help:      "Reminder timer callbacks by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.remindersDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_dropped_total",
		Help:      "Reminder records removed during reconciliation.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.remindersPending, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reminders_pending",
		Help:      "Live reminder timers.",
	})); err != nil {
		return nil, err
	}
	if m.deliveries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification deliveries by kind and result.",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}
	if m.digestRuns, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "digest_runs_total",
		Help:      "Periodic digest job executions.",
	})); err != nil {
		return nil, err
	}
	if m.ephemeralExpired, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ephemeral_expired_total",
		Help:      "Ephemeral UI artifacts removed after their TTL.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) TaskOp(op string, err error) {
	if m == nil {
		return
	}
	m.taskOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ReminderScheduled() {
	if m == nil {
		return
	}
	m.remindersSet.Inc()
}

// ReminderFired records a timer callback outcome: delivered, failed or discarded.
func (m *Metrics) ReminderFired(outcome string) {
	if m == nil {
		return
	}
	m.remindersFired.WithLabelValues(outcome).Inc()
}

// ReminderDropped records a reconciliation removal: expired or stale.
func (m *Metrics) ReminderDropped(reason string) {
	if m == nil {
		return
	}
	m.remindersDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetPendingReminders(n int) {
	if m == nil {
		return
	}
	m.remindersPending.Set(float64(n))
}

func (m *Metrics) Delivery(kind string, err error) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) DigestRun() {
	if m == nil {
		return
	}
	m.digestRuns.Inc()
}

func (m *Metrics) EphemeralExpired() {
	if m == nil {
		return
	}
	m.ephemeralExpired.Inc()
}
