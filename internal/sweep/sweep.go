// Package sweep removes abandoned temp upload directories.
//
// Uploads are staged under <tmp>/<temp id>/ until the owning record is saved.
// Records that are never saved leave those directories behind; the sweeper
// deletes the ones older than MaxAge. The age comes from the timestamp
// embedded in the temp id, falling back to the directory mtime.
package sweep

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/afero"

	"upload-column/internal/upload"
)

const DefaultMaxAge = time.Hour

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_column_sweep_runs_total",
		Help: "Number of temp sweeper runs.",
	})
	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_column_sweep_removed_total",
		Help: "Number of temp upload directories removed.",
	})
	removedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_column_sweep_removed_bytes_total",
		Help: "Bytes reclaimed by the temp sweeper.",
	})
	durationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_column_sweep_duration_seconds",
		Help:    "Duration of one sweeper run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

type Result struct {
	Scanned  int
	Removed  int
	Bytes    int64
	Errors   int
	Duration time.Duration
}

type Sweeper struct {
	fs       afero.Fs
	dirs     []string
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Sweeper)

func WithMaxAge(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(fs afero.Fs, dirs []string, opts ...Option) *Sweeper {
	s := &Sweeper{
		fs:       fs,
		dirs:     dirs,
		maxAge:   DefaultMaxAge,
		interval: 10 * time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "sweep"))
	return s
}

// Start runs RunOnce immediately and then on every interval until Stop or
// ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	s.logger.Info("sweeper started",
		slog.String("interval", s.interval.String()),
		slog.String("max_age", s.maxAge.String()),
	)
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce removes every expired temp directory under the configured dirs.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	start := time.Now()
	var res Result
	cutoff := s.now().Add(-s.maxAge)

	for _, dir := range s.dirs {
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if !os.IsNotExist(err) {
				res.Errors++
				s.logger.Error("read temp dir failed", slog.String("dir", dir), slog.String("error", err.Error()))
			}
			continue
		}
		for _, entry := range entries {
			if ctx.Err() != nil {
				break
			}
			if !entry.IsDir() || !upload.IsTempID(entry.Name()) {
				continue
			}
			res.Scanned++
			if !s.expired(entry, cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			size := dirSize(s.fs, path)
			if err := s.fs.RemoveAll(path); err != nil {
				res.Errors++
				s.logger.Error("remove temp upload failed", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			res.Removed++
			res.Bytes += size
			s.logger.Debug("temp upload removed", slog.String("path", path), slog.String("size", humanize.Bytes(uint64(size))))
		}
	}

	res.Duration = time.Since(start)
	runsTotal.Inc()
	removedTotal.Add(float64(res.Removed))
	removedBytesTotal.Add(float64(res.Bytes))
	durationSeconds.Observe(res.Duration.Seconds())

	s.logger.Info("sweep finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("removed", res.Removed),
		slog.String("reclaimed", humanize.Bytes(uint64(res.Bytes))),
		slog.Int("errors", res.Errors),
		slog.Duration("duration", res.Duration),
	)
	return res
}

func (s *Sweeper) expired(entry os.FileInfo, cutoff time.Time) bool {
	created, ok := upload.TempIDTime(entry.Name())
	if !ok {
		created = entry.ModTime()
	}
	return created.Before(cutoff)
}

func dirSize(fs afero.Fs, root string) int64 {
	var total int64
	_ = afero.Walk(fs, root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
