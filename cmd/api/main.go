package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"upload-column/api"
	"upload-column/internal/catalog"
	"upload-column/internal/column"
	"upload-column/internal/config"
	"upload-column/internal/events"
	"upload-column/internal/gcs"
	"upload-column/internal/health"
	"upload-column/internal/imageproc"
	"upload-column/internal/localstore"
	"upload-column/internal/netfetch"
	"upload-column/internal/recorddb"
	"upload-column/internal/s3store"
	"upload-column/internal/server"
	"upload-column/internal/sweep"
	"upload-column/internal/upload"
	"upload-column/internal/uploader"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger(os.Stdout))
	ctx := context.Background()

	if cfg.DBDSN == "" {
		fatal("RECORD_DB_DSN is required")
	}
	db, err := recorddb.Open(cfg.DBDSN)
	if err != nil {
		fatal("failed to open record db", "err", err)
	}
	defer db.Close()
	if err := recorddb.Init(ctx, db); err != nil {
		fatal("failed to init record db", "err", err)
	}
	store := recorddb.Store{DB: db}
	checks := []health.Check{{Name: "record_db", Check: store.Ping}}

	mirror, err := newMirror(ctx, cfg)
	if err != nil {
		fatal("failed to create mirror", "driver", cfg.MirrorDriver, "err", err)
	}

	publisher, closePublisher, check, err := newPublisher(ctx, cfg)
	if err != nil {
		fatal("failed to create event publisher", "driver", cfg.EventsDriver, "err", err)
	}
	defer closePublisher()
	if check != nil {
		checks = append(checks, health.Check{Name: "events", Check: check})
	}

	fs := afero.NewOsFs()
	opts := []column.Option{
		column.WithFs(fs),
		column.WithDefaults(column.Config{RootDir: cfg.RootDir, TmpDir: upload.Static(cfg.TmpDir), WebRoot: column.String(cfg.WebRoot)}),
		column.WithMirror(mirror),
		column.WithPublisher(publisher),
		column.WithImageManipulator(imageproc.NewManipulator(fs, imageproc.Limits{MaxPixels: cfg.ImageMaxPixels}, cfg.ImageQuality)),
		column.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}, netfetch.Options{
			MaxBytes:     cfg.FetchMaxBytes,
			MaxRedirects: cfg.FetchMaxRedirects,
		}),
	}
	kinds, err := catalog.Registries(opts...)
	if err != nil {
		fatal("failed to register columns", "err", err)
	}

	doc, err := api.Load()
	if err != nil {
		fatal("failed to load openapi spec", "err", err)
	}
	if err := doc.Validate(ctx); err != nil {
		fatal("invalid openapi spec", "err", err)
	}

	// The api process sweeps too, so a single-binary deploy does not leak temp dirs.
	sweeper := sweep.New(fs, catalog.TmpDirs(kinds), sweep.WithMaxAge(cfg.SweepMaxAge), sweep.WithInterval(cfg.SweepInterval))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	router := chi.NewRouter()
	health.Register(router, checks...)
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/", server.New(store, kinds, slog.Default()).Routes(doc))

	addr := ":" + cfg.Port
	slog.Info("api listening", "addr", addr, "mirror", cfg.MirrorDriver, "events", cfg.EventsDriver)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		fatal("api server failed", "err", err)
	}
}

func newMirror(ctx context.Context, cfg *config.Config) (uploader.Uploader, error) {
	switch cfg.MirrorDriver {
	case "local":
		return localstore.NewUploader(afero.NewOsFs(), cfg.MirrorDir, cfg.MirrorBaseURL), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return gcs.NewUploader(client, cfg.GCSBucket, cfg.GCSMakePublic, true), nil
	case "s3":
		u, err := s3store.New(ctx, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, nil
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, func(), health.Checker, error) {
	switch cfg.EventsDriver {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.PubSubMode == "emulator" {
			if err := events.EnsureTopicWithRetry(ctx, client, cfg.PubSubTopic, 10, 500*time.Millisecond); err != nil {
				_ = client.Close()
				return nil, nil, nil, err
			}
		}
		topic := client.Topic(cfg.PubSubTopic)
		p := events.NewPubSubPublisher(topic)
		closeFn := func() {
			p.Stop()
			_ = client.Close()
		}
		check := func(ctx context.Context) error {
			_, err := topic.Exists(ctx)
			return err
		}
		return p, closeFn, check, nil
	case "log":
		return events.LogPublisher{Logger: slog.Default().With("component", "events")}, func() {}, nil, nil
	default:
		return events.Discard{}, func() {}, nil, nil
	}
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
