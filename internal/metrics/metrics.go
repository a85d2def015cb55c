package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_dataset_fetches_total",
			Help: "Total dataset file downloads",
		},
		[]string{"scheme", "status"},
	)

	DatasetFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvclearsky_dataset_fetch_latency_seconds",
			Help:    "Dataset file download latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	RecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_records_loaded_total",
			Help: "Total station records read from the dataset",
		},
		[]string{"station"},
	)

	RecordsDroppedQC = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_records_dropped_qc_total",
			Help: "Total station records removed by the quality-control filter",
		},
		[]string{"station"},
	)

	RecordsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_records_imported_total",
			Help: "Total records written to the store",
		},
		[]string{"kind"},
	)

	KPVComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_kpv_computations_total",
			Help: "Total K_PV range computations",
		},
		[]string{"model", "status"},
	)

	KPVDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvclearsky_kpv_duration_seconds",
			Help:    "K_PV range computation latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"model"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvclearsky_http_requests_total",
			Help: "Total API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)
