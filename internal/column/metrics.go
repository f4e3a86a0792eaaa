package column

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_column_uploads_total",
			Help: "Upload assignments by attribute and outcome",
		},
		[]string{"attribute", "result"},
	)

	uploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upload_column_upload_bytes",
			Help:    "Size of staged uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"attribute"},
	)

	savesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_column_saves_total",
			Help: "Staged uploads moved to permanent storage",
		},
		[]string{"attribute"},
	)

	deletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_column_deletes_total",
			Help: "Attachments removed from disk by reason",
		},
		[]string{"attribute", "reason"},
	)
)

const (
	resultStaged    = "staged"
	resultEmpty     = "empty"
	resultIntegrity = "integrity"
	resultError     = "error"

	reasonReplaced  = "replaced"
	reasonDestroyed = "destroyed"
)
