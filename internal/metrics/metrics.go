// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every collector the gateway records. A single instance is
// created at bootstrap and passed by reference; there is no package-level
// registry state.
type Metrics struct {
	Registry *prometheus.Registry

	UpdatesReceived *prometheus.CounterVec // label: outcome = accepted|rejected
	UpdatesDropped  prometheus.Counter

	JobsSubmitted prometheus.Counter
	JobsRejected  prometheus.Counter
	JobsExecuted  prometheus.Counter
	JobsQueued    prometheus.Gauge

	SpawnsStarted  prometheus.Counter
	SpawnsRejected prometheus.Counter
	SpawnsActive   prometheus.Gauge

	SchedulerTicks    prometheus.Counter
	SchedulerSkipped  prometheus.Counter
	ActionsDispatched *prometheus.CounterVec // label: type = send|delete
	ActionsExpired    prometheus.Counter

	APICalls *prometheus.CounterVec // labels: method, outcome
}

// New builds and registers all gateway collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		UpdatesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hookbot_updates_received_total", Help: "Webhook requests by validation outcome."},
			[]string{"outcome"},
		),
		UpdatesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_updates_dropped_total", Help: "Structurally invalid updates dropped after parse."},
		),
		JobsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_jobs_submitted_total", Help: "Jobs accepted by the worker pool."},
		),
		JobsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_jobs_rejected_total", Help: "Jobs rejected because the queue was full."},
		),
		JobsExecuted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_jobs_executed_total", Help: "Jobs fully executed by workers."},
		),
		JobsQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "hookbot_jobs_queued", Help: "Jobs currently waiting in the queue."},
		),
		SpawnsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_spawns_started_total", Help: "External handler processes spawned."},
		),
		SpawnsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_spawns_rejected_total", Help: "Spawn attempts rejected at capacity."},
		),
		SpawnsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "hookbot_spawns_active", Help: "Live unreaped handler processes."},
		),
		SchedulerTicks: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_scheduler_ticks_total", Help: "Admitted scheduler ticks."},
		),
		SchedulerSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_scheduler_ticks_skipped_total", Help: "Ticks dropped while a previous tick was in flight."},
		),
		ActionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hookbot_actions_dispatched_total", Help: "Scheduled actions dispatched."},
			[]string{"type"},
		),
		ActionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hookbot_actions_expired_total", Help: "Scheduled actions discarded past their expiry window."},
		),
		APICalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hookbot_api_calls_total", Help: "Outbound Telegram API calls."},
			[]string{"method", "outcome"},
		),
	}

	reg.MustRegister(
		m.UpdatesReceived, m.UpdatesDropped,
		m.JobsSubmitted, m.JobsRejected, m.JobsExecuted, m.JobsQueued,
		m.SpawnsStarted, m.SpawnsRejected, m.SpawnsActive,
		m.SchedulerTicks, m.SchedulerSkipped, m.ActionsDispatched, m.ActionsExpired,
		m.APICalls,
	)
	return m
}
