package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error stages reported by ErrorsTotal.
const (
	stageOpen   = "open"
	stageBuild  = "build"
	stageApply  = "apply"
	stageCommit = "commit"
	stageClose  = "close"
	stageDue    = "due"
)

var (
	// DocumentsIndexed counts documents upserted into an index.
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_documents_indexed_total",
			Help: "Total number of product documents upserted",
		},
		[]string{"owner"},
	)

	// DocumentsDeleted counts delete operations issued for products without a document.
	DocumentsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_documents_deleted_total",
			Help: "Total number of product documents deleted",
		},
		[]string{"owner"},
	)

	// Commits counts writer commits.
	Commits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_commits_total",
			Help: "Total number of index writer commits",
		},
		[]string{"owner"},
	)

	// WriterOpens counts writer opens.
	WriterOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_writer_opens_total",
			Help: "Total number of index writer opens",
		},
		[]string{"owner"},
	)

	// WriterCloses counts writer closes.
	WriterCloses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_writer_closes_total",
			Help: "Total number of index writer closes",
		},
		[]string{"owner"},
	)

	// ErrorsTotal counts failures by pipeline stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_errors_total",
			Help: "Total number of indexing failures by stage",
		},
		[]string{"owner", "stage"},
	)

	// QueueDepth reports ids waiting in each owner's queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_queue_depth",
			Help: "Number of product ids waiting to be indexed",
		},
		[]string{"owner"},
	)

	// BuildDuration observes document build time.
	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_build_duration_seconds",
			Help:    "Duration of product document builds in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"owner"},
	)
)
