package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	collyfetcher "github.com/BhekumusaEric/apply4me-sub001/internal/fetcher/colly"
	headlessfetcher "github.com/BhekumusaEric/apply4me-sub001/internal/fetcher/headless"
	"github.com/BhekumusaEric/apply4me-sub001/internal/hash/sha256"
	"github.com/BhekumusaEric/apply4me-sub001/internal/headless/detector"
	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
	"github.com/BhekumusaEric/apply4me-sub001/internal/notify/sendgrid"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/policy/ratelimit"
	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
	"github.com/BhekumusaEric/apply4me-sub001/internal/progress/sinks"
	memorypublisher "github.com/BhekumusaEric/apply4me-sub001/internal/publisher/memory"
	gcppublisher "github.com/BhekumusaEric/apply4me-sub001/internal/publisher/pubsub"
	"github.com/BhekumusaEric/apply4me-sub001/internal/retry"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scraper"
	gcsstorage "github.com/BhekumusaEric/apply4me-sub001/internal/storage/gcs"
	localstorage "github.com/BhekumusaEric/apply4me-sub001/internal/storage/local"
	memorystorage "github.com/BhekumusaEric/apply4me-sub001/internal/storage/memory"
	pgstore "github.com/BhekumusaEric/apply4me-sub001/internal/storage/postgres"
	sqlitestore "github.com/BhekumusaEric/apply4me-sub001/internal/storage/sqlite"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// publishedHistory bounds the in-memory publisher used without Pub/Sub.
const publishedHistory = 256

type stores struct {
	entities store.EntityRepository
	ledger   store.NotificationLedger
	runs     store.RunRepository
}

func (a *App) setupStores(ctx context.Context) (stores, error) {
	switch a.cfg.Storage.Backend {
	case "postgres":
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxConns),
		})
		if err != nil {
			return stores{}, fmt.Errorf("postgres init failed: %w", err)
		}
		a.onClose(pool.Close)
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return stores{}, err
		}
		entities, err := pgstore.NewEntityStore(pool)
		if err != nil {
			return stores{}, fmt.Errorf("postgres entity store init failed: %w", err)
		}
		a.logger.Info("using postgres storage backend")
		return stores{entities: entities, ledger: pgstore.NewLedger(pool), runs: pgstore.NewRunStore(pool)}, nil
	case "sqlite":
		db, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: a.cfg.SQLite.Path, BusyTimeout: 5 * time.Second})
		if err != nil {
			return stores{}, fmt.Errorf("sqlite init failed: %w", err)
		}
		a.onClose(func() {
			if err := db.Close(); err != nil {
				a.logger.Warn("sqlite close failed", zap.Error(err))
			}
		})
		a.logger.Info("using sqlite storage backend", zap.String("path", a.cfg.SQLite.Path))
		return stores{entities: db.Entities(), ledger: db.Ledger(), runs: db.Runs()}, nil
	default:
		a.logger.Warn("using in-memory storage backend; entities are lost on exit")
		return stores{
			entities: memorystorage.NewEntityStore(),
			ledger:   memorystorage.NewLedger(),
			runs:     memorystorage.NewRunStore(),
		}, nil
	}
}

func (a *App) setupArchive(ctx context.Context) (opportunity.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		blob, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Archive.GCSBucket,
			Prefix: a.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blob, nil
	case "local":
		blob, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.LocalDir))
		return blob, nil
	case "memory":
		a.logger.Info("archiving pages in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("page archive disabled")
		return nil, nil
	}
}

func (a *App) setupScraper(ctx context.Context, clock opportunity.Clock) (*scraper.Scraper, error) {
	sc := a.cfg.Scraper
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     sc.UserAgent,
		RespectRobots: sc.RespectRobots,
		Timeout:       a.cfg.RequestTimeout(),
	})
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", sc.UserAgent),
		zap.Bool("respect_robots", sc.RespectRobots),
	)

	var headless opportunity.Fetcher
	if a.cfg.Headless.Enabled {
		chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         sc.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.onClose(chrome.Close)
		headless = chrome
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: sc.RateLimitRPS, DefaultBurst: sc.RateLimitBurst})
	policy := retry.Policy{
		MaxRetries: sc.MaxRetries,
		Initial:    time.Duration(sc.BackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(sc.BackoffMaxMs) * time.Millisecond,
	}
	pages := scraper.NewPageFetcher(
		static,
		headless,
		detector.NewHeuristic(a.cfg.Headless.PromotionThresh),
		limiter,
		policy,
		a.logger,
	)
	scr := scraper.New(pages, scraper.NewRegistry(), clock, scraper.Config{
		DegradedFallback: sc.DegradedFallback,
		Concurrency:      sc.Concurrency,
	}, a.logger)

	archive, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		digest := a.cfg.Archive.DigestLength
		if digest == 0 {
			digest = 64
		}
		hasher, err := sha256.NewTruncated(digest)
		if err != nil {
			return nil, fmt.Errorf("archive hasher init failed: %w", err)
		}
		scr.WithArchive(archive, hasher)
	}
	return scr, nil
}

func (a *App) setupNotifier(clock opportunity.Clock, ledger store.NotificationLedger) (*notify.Notifier, error) {
	nc := a.cfg.Notify
	var transport notify.Transport
	switch nc.Transport {
	case "sendgrid":
		sg, err := sendgrid.New(sendgrid.Config{
			APIKey:    nc.SendGridAPIKey,
			FromEmail: nc.FromEmail,
			FromName:  nc.FromName,
			AppName:   nc.AppName,
		})
		if err != nil {
			return nil, fmt.Errorf("sendgrid transport init failed: %w", err)
		}
		transport = sg
		a.logger.Info("sending notifications through SendGrid", zap.String("from", nc.FromEmail))
	case "memory":
		transport = notify.NewMemoryTransport()
	default:
		transport = notify.NewLogTransport(a.logger)
		a.logger.Info("notifications are logged, not delivered")
	}

	n, err := notify.New(transport, clock, notify.Config{AppName: nc.AppName}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("notifier init failed: %w", err)
	}
	if nc.Idempotent {
		n.WithLedger(ledger)
	}
	return n, nil
}

func (a *App) setupPublisher(ctx context.Context) (opportunity.Publisher, error) {
	if a.cfg.PubSub.Topic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, keeping run summaries in memory")
		return memorypublisher.NewBounded(publishedHistory), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	pub := gcppublisher.New(client, map[string]string{"service": "apply4me-pipeline"})
	a.onClose(func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	})
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return pub, nil
}

// setupProgress starts the hub that carries run and source events to the
// log, Prometheus and source health sinks.
func (a *App) setupProgress() (*progress.Hub, *sinks.HealthSink, error) {
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	health := sinks.NewHealthSink()
	hub := progress.NewHub(progress.Config{Logger: a.logger},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		health,
	)
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	})
	return hub, health, nil
}
