package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest metrics
var (
	IngestedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "The total number of transfer records handed to the store, by outcome",
	}, []string{"outcome"})

	DenomResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_denom_resolutions_total",
		Help: "The total number of IBC denom resolutions, by result",
	}, []string{"result"})
)

// Sweeper metrics
var (
	SweeperRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "The total number of reconciliation sweeps",
	})

	SweeperPatchedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_patched_records_total",
		Help: "The total number of records whose base denom was filled in by the sweeper",
	})

	SweeperLastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweeper_last_run_timestamp_seconds",
		Help: "Unix time of the last finished sweep",
	})
)

// Overview metrics
var (
	OverviewUnavailable = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overview_metric_unavailable_total",
		Help: "The number of times an overview metric could not be computed",
	}, []string{"metric"})

	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "overview_active_transfers",
		Help: "Active transfers inside the rolling 24h window at the last overview",
	})
)

// Event metrics
var StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "transfer_status_transitions_total",
	Help: "The total number of observed transfer status transitions",
}, []string{"from", "to"})
