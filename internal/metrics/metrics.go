package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecimationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drillprep_decimation_runs_total",
			Help: "Decimation runs by outcome",
		},
		[]string{"outcome"},
	)

	DecimationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drillprep_decimation_latency_seconds",
			Help:    "Decimation run latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	TimestampsConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drillprep_timestamps_converted_total",
			Help: "Timestamp cells converted, by result",
		},
		[]string{"result"},
	)

	UploadsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drillprep_uploads_ingested_total",
			Help: "Log files ingested, by file type",
		},
		[]string{"type"},
	)

	FTPFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drillprep_ftp_fetches_total",
			Help: "Rig FTP file fetches",
		},
		[]string{"host", "status"},
	)

	FTPFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drillprep_ftp_fetch_latency_seconds",
			Help:    "Rig FTP fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)
)
