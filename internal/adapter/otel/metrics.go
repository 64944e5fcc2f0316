package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/CodeForge/internal/domain/agent"
)

const meterName = "grid"

// Metrics holds the grid's metric instruments: dispatch throughput, queue
// depth, and ledger occupancy. GridQueueDepth/LedgerFree/LedgerTotal are
// observable gauges fed by an async callback registered in NewMetrics,
// since they report sampled state rather than discrete events.
type Metrics struct {
	JobsSubmitted         metric.Int64Counter
	JobsDispatched        metric.Int64Counter
	JobsCompleted         metric.Int64Counter
	JobsFailed            metric.Int64Counter
	GridTasksEnqueued     metric.Int64Counter
	GridTasksDequeued     metric.Int64Counter
	SchedulerTickDuration metric.Float64Histogram
	GridQueueDepth        metric.Int64ObservableGauge
	LedgerFree            metric.Float64ObservableGauge
	LedgerTotal           metric.Float64ObservableGauge
}

// LedgerSnapshotFunc returns a point-in-time view of every agent's capacity,
// the same shape ledger.Ledger.Snapshot returns — passed as a closure so
// this package need not import the ledger port.
type LedgerSnapshotFunc func() []agent.Snapshot

// QueueDepthFunc returns the current undequeued task count per grid job id.
type QueueDepthFunc func() map[string]int64

// NewMetrics creates all grid metric instruments against the global
// MeterProvider (set by Setup). ledgerFn and queueFn may be nil, in which
// case the corresponding gauges are registered but never observe a value.
func NewMetrics(ledgerFn LedgerSnapshotFunc, queueFn QueueDepthFunc) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.JobsSubmitted, err = meter.Int64Counter("grid.jobs.submitted",
		metric.WithDescription("Jobs accepted by add_job")); err != nil {
		return nil, err
	}
	if m.JobsDispatched, err = meter.Int64Counter("grid.jobs.dispatched",
		metric.WithDescription("Jobs or grid tasks handed to an agent")); err != nil {
		return nil, err
	}
	if m.JobsCompleted, err = meter.Int64Counter("grid.jobs.completed",
		metric.WithDescription("Jobs reaching SUCCEEDED")); err != nil {
		return nil, err
	}
	if m.JobsFailed, err = meter.Int64Counter("grid.jobs.failed",
		metric.WithDescription("Jobs reaching a terminal state other than SUCCEEDED")); err != nil {
		return nil, err
	}
	if m.GridTasksEnqueued, err = meter.Int64Counter("grid.gridtasks.enqueued",
		metric.WithDescription("Grid tasks appended via add_tasks_to_grid_job")); err != nil {
		return nil, err
	}
	if m.GridTasksDequeued, err = meter.Int64Counter("grid.gridtasks.dequeued",
		metric.WithDescription("Grid tasks claimed by a worker")); err != nil {
		return nil, err
	}
	if m.SchedulerTickDuration, err = meter.Float64Histogram("grid.scheduler.tick_duration_seconds",
		metric.WithDescription("Wall time of one scheduler tick")); err != nil {
		return nil, err
	}
	if m.GridQueueDepth, err = meter.Int64ObservableGauge("grid.gridtasks.queue_depth",
		metric.WithDescription("Undequeued task count per grid job")); err != nil {
		return nil, err
	}
	if m.LedgerFree, err = meter.Float64ObservableGauge("grid.ledger.free",
		metric.WithDescription("Free resource units by kind, summed across agents")); err != nil {
		return nil, err
	}
	if m.LedgerTotal, err = meter.Float64ObservableGauge("grid.ledger.total",
		metric.WithDescription("Total resource units by kind, summed across agents")); err != nil {
		return nil, err
	}

	var insts []metric.Observable
	if ledgerFn != nil {
		insts = append(insts, m.LedgerFree, m.LedgerTotal)
	}
	if queueFn != nil {
		insts = append(insts, m.GridQueueDepth)
	}
	if len(insts) == 0 {
		return m, nil
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if ledgerFn != nil {
			free := map[string]float64{}
			total := map[string]float64{}
			for _, snap := range ledgerFn() {
				for kind, qty := range snap.Available {
					free[kind] += qty
				}
				for kind, qty := range snap.Totals {
					total[kind] += qty
				}
			}
			for kind, v := range free {
				o.ObserveFloat64(m.LedgerFree, v, metric.WithAttributes(attribute.String("resource.kind", kind)))
			}
			for kind, v := range total {
				o.ObserveFloat64(m.LedgerTotal, v, metric.WithAttributes(attribute.String("resource.kind", kind)))
			}
		}
		if queueFn != nil {
			for gridJobID, v := range queueFn() {
				o.ObserveInt64(m.GridQueueDepth, v, metric.WithAttributes(attribute.String("grid_job.id", gridJobID)))
			}
		}
		return nil
	}, insts...)
	if err != nil {
		return nil, err
	}

	return m, nil
}
