package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/pvgrid-cache/internal/acquisition"
	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore/miniostore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore/savedata"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/cellindex"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/filestore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/summarylru"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/config"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/health"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/server"
	"github.com/mohammed-shakir/pvgrid-cache/internal/flow"
	"github.com/mohammed-shakir/pvgrid-cache/internal/gridevents"
	"github.com/mohammed-shakir/pvgrid-cache/internal/logger"
	h3mapper "github.com/mohammed-shakir/pvgrid-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/pvgrid-cache/internal/metrics"
	"github.com/mohammed-shakir/pvgrid-cache/internal/pvgis"
	"github.com/mohammed-shakir/pvgrid-cache/internal/schedule"
	"github.com/mohammed-shakir/pvgrid-cache/internal/simrunner"
)

var Version = "dev"

const eventQueueSize = 1024

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// a missing file is fine, real env wins over it
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load failed", "file", *envFile, "err", err)
	}
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "pvgrid",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv("METRICS_ENABLED") == "true" {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    os.Getenv("METRICS_ADDR"),
			Path:    os.Getenv("METRICS_PATH"),
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	} else {
		observability.Init(nil, false)
	}
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting pvgrid",
		"addr", cfg.Addr,
		"version", Version,
		"pvgis", cfg.PVGIS.URL,
		"cache_driver", cfg.Cache.Driver,
		"blob_driver", cfg.Blob.Driver)

	checks := map[string]health.Pinger{}

	var rdb *redisstore.Client
	if cfg.Cache.Driver == "redis" || cfg.LocationIndex.Enabled {
		var err error
		rdb, err = redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rdb.Close() }()
		checks["redis"] = rdb
	}

	backend, err := cacheBackend(cfg, rdb)
	if err != nil {
		appLog.Error("cache setup failed", "err", err)
		return 1
	}
	store := cache.NewStore(backend, cfg.Cache.OpTimeout, appLog)
	checks["cache"] = store

	blob, err := blobStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("blob store setup failed", "driver", cfg.Blob.Driver, "err", err)
		return 1
	}

	opts := acquisition.Options{
		Fetcher: pvgis.NewClient(pvgis.Options{
			BaseURL:      cfg.PVGIS.URL,
			PeakPowerKWp: cfg.PVGIS.PeakPowerKWp,
			Loss:         cfg.PVGIS.Loss,
			Timeout:      cfg.PVGIS.Timeout,
			Logger:       appLog,
		}),
		Scheduler: schedule.New(schedule.Config{
			MaxConcurrency: cfg.Fetch.MaxConcurrency,
			MaxPerSecond:   cfg.Fetch.MaxPerSecond,
		}),
		Store:     store,
		Blob:      blob,
		Summaries: summarylru.New[acquisition.Summary](cfg.Cache.SummaryLRUSize),
		Retries:   cfg.Fetch.Retries,
		RetryBase: cfg.Fetch.RetryBase,
		Logger:    appLog,
	}

	deps := server.Deps{Checks: checks}

	if cfg.LocationIndex.Enabled {
		loc := cellindex.NewLocator(cellindex.NewRedisIndex(rdb), h3mapper.New(), cfg.LocationIndex.Res)
		opts.Locator = loc
		deps.Near = loc
	}

	if cfg.Events.Enabled {
		pub, err := gridevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, eventQueueSize, appLog)
		if err != nil {
			appLog.Error("grid events setup failed", "brokers", cfg.Events.Brokers, "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		opts.Events = pub
	}

	engine, err := acquisition.New(opts)
	if err != nil {
		appLog.Error("engine setup failed", "err", err)
		return 1
	}
	deps.Grids = engine

	if cfg.Events.Warm {
		cons := gridevents.NewConsumer(gridevents.ConsumerConfig{
			Brokers:             cfg.Events.Brokers,
			Topic:               cfg.Events.Topic,
			GroupID:             cfg.Events.GroupID,
			InitialOffsetOldest: false,
		}, engine, appLog)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("grid events consumer stopped", "err", err)
			}
		}()
	}

	flows := flow.NewRegistry(appLog)
	flows.Register(flow.KindGrid, flow.GridStrategy{
		Engine:     engine,
		AzimuthRes: cfg.DefaultAzRes,
		SlopeRes:   cfg.DefaultSlopeRes,
	})
	flows.Register(flow.KindSimulation, flow.SimulationStrategy{
		Runner: simrunner.New(cfg.SimulationURL, nil, appLog),
	})
	deps.Flows = flows

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func cacheBackend(cfg config.Config, rdb *redisstore.Client) (cache.Backend, error) {
	switch cfg.Cache.Driver {
	case "redis":
		return redisstore.NewGridBackend(rdb), nil
	case "file", "":
		return filestore.New(cfg.Cache.Dir)
	default:
		return nil, errors.New("unknown CACHE_DRIVER " + cfg.Cache.Driver)
	}
}

// blobStore returns nil when no archive is configured.
func blobStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (blobstore.Store, error) {
	switch cfg.Blob.Driver {
	case "minio":
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.Blob.MinioEndpoint,
			AccessKey: cfg.Blob.MinioAccessKey,
			SecretKey: cfg.Blob.MinioSecretKey,
			Bucket:    cfg.Blob.MinioBucket,
			UseSSL:    cfg.Blob.MinioUseSSL,
		})
	case "savedata":
		return savedata.New(cfg.Blob.SaveDataURL, httpclient.NewOutbound(cfg.PVGIS.Timeout), logger), nil
	case "none", "":
		return nil, nil
	default:
		return nil, errors.New("unknown BLOB_DRIVER " + cfg.Blob.Driver)
	}
}
