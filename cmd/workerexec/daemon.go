package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/workerexec/internal/cache"
	"github.com/oriys/workerexec/internal/codeloader"
	"github.com/oriys/workerexec/internal/config"
	executorgrpc "github.com/oriys/workerexec/internal/grpc"
	"github.com/oriys/workerexec/internal/guest"
	"github.com/oriys/workerexec/internal/invocationkey"
	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/metrics"
	"github.com/oriys/workerexec/internal/observability"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/oplogsvc"
	"github.com/oriys/workerexec/internal/promise"
	"github.com/oriys/workerexec/internal/ratelimit"
	"github.com/oriys/workerexec/internal/routing"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
	"github.com/oriys/workerexec/internal/worker"
	"github.com/oriys/workerexec/internal/workercache"
	"github.com/oriys/workerexec/internal/workerservice"
)

func daemonCmd() *cobra.Command {
	var (
		grpcAddr string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the workerexec executor daemon",
		Long:  "Run workerexec as an executor process: worker lifecycle, oplog, routing and the gRPC surface other executors and CLI clients dial into.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("grpc-addr") {
				cfg.Daemon.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			var promMetrics *metrics.PrometheusMetrics
			if cfg.Observability.Metrics.Enabled {
				promMetrics = metrics.InitPrometheus(
					cfg.Observability.Metrics.Namespace,
					cfg.Observability.Metrics.HistogramBuckets,
				)
			}
			debugMetrics := metrics.New()

			indexedStorage, err := newIndexedStorage(cfg.Storage)
			if err != nil {
				return fmt.Errorf("open indexed storage: %w", err)
			}
			blobStorage, err := newBlobStorage(cmd.Context(), cfg.Storage)
			if err != nil {
				return fmt.Errorf("open blob storage: %w", err)
			}

			oplogs := oplogsvc.New(indexedStorage, blobStorage, oplog.Config{
				MaxOperationsBeforeCommit: cfg.Oplog.MaxOperationsBeforeCommit,
				MaxPayloadSize:            cfg.Oplog.MaxPayloadSize,
			})
			defer oplogs.Shutdown()

			metadata := worker.NewMemoryMetadataStore()
			invokeKeys := invocationkey.New()
			promises := promise.New()

			components, err := newComponentSource(cfg.Worker)
			if err != nil {
				return fmt.Errorf("open component source: %w", err)
			}

			accounts := ratelimit.WorkerAccounts{Registry: ratelimit.NewRegistry()}

			workerDeps := worker.Deps{
				Components: components,
				Metadata:   metadata,
				Oplogs:     oplogs,
				InvokeKeys: invokeKeys,
				Accounts:   accounts,
				NewStore:   func() guest.Store { return guest.NewSim() },
			}
			cache := workercache.New(workerDeps, cfg.Worker.ActiveWorkerCacheSize)

			shards := routing.NewShardManager(cfg.Routing.ShardCount)
			table := routing.NewRoutingTable()

			localAddr := cfg.Routing.LocalExecutor
			assignment := make(map[routing.ShardID]string, shards.ShardCount())
			for i := 0; i < shards.ShardCount(); i++ {
				assignment[routing.ShardID(i)] = localAddr
			}
			table.Swap(assignment)

			// dialLocalFirst short-circuits to the in-process Service for
			// this executor's own advertised address, so a single-node
			// deployment never pays a network round trip to reach itself;
			// any other address falls through to a real gRPC dial.
			var svc *workerservice.Service
			dial := func(addr string) (routing.ExecutorClient, error) {
				if addr == localAddr && svc != nil {
					return svc, nil
				}
				return executorgrpc.Dial(addr)
			}

			router := routing.New(shards, table, dial, nil, routing.Config{
				RetryBudget:  cfg.Routing.RetryBudget,
				RetryBackoff: cfg.Routing.RetryBackoff,
			})

			svc = workerservice.New(workerservice.Deps{
				Cache:      cache,
				Metadata:   metadata,
				Oplogs:     oplogs,
				InvokeKeys: invokeKeys,
				Promises:   promises,
				Router:     router,
				Metrics:    promMetrics,
				LocalAddr:  localAddr,
			})

			grpcServer := executorgrpc.NewServer(svc)
			bindAddr := cfg.Daemon.GRPCAddr
			if bindAddr == "" {
				bindAddr = localAddr
			}
			if err := grpcServer.Start(bindAddr); err != nil {
				return fmt.Errorf("start grpc server: %w", err)
			}

			var debugServer *http.Server
			if cfg.Observability.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/debug/counters", debugMetrics.Handler())
				if promMetrics != nil {
					mux.Handle("/metrics", promMetrics.Handler())
				}
				debugServer = &http.Server{Addr: debugHTTPAddr(bindAddr), Handler: mux}
				go func() {
					if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("debug http server stopped", "error", err)
					}
				}()
				logging.Op().Info("debug http endpoint started", "addr", debugServer.Addr)

				if promMetrics != nil {
					cpuTicker := time.NewTicker(15 * time.Second)
					defer cpuTicker.Stop()
					go func() {
						for range cpuTicker.C {
							promMetrics.SampleProcessCPU()
						}
					}()
				}
			}

			logging.Op().Info("workerexec daemon started",
				"grpc_addr", grpcServer.Addr(),
				"shard_count", shards.ShardCount(),
			)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			grpcServer.Stop()
			if debugServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				debugServer.Shutdown(ctx)
				cancel()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC bind address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	return cmd
}

// debugHTTPAddr derives a debug HTTP port from the gRPC bind address,
// offset by one so the two listeners never collide on the common
// "everything on :7190" default.
func debugHTTPAddr(grpcAddr string) string {
	host, portStr, err := net.SplitHostPort(grpcAddr)
	if err != nil {
		return ":7191"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ":7191"
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1))
}

func newComponentSource(cfg config.WorkerConfig) (worker.ComponentSource, error) {
	fs, err := codeloader.NewFSSource(cfg.ComponentRoot)
	if err != nil {
		return nil, err
	}
	return cache.NewCachingComponentSource(fs, cache.NewInMemoryCache()), nil
}

func newIndexedStorage(cfg config.StorageConfig) (indexed.Storage, error) {
	switch cfg.IndexedDriver {
	case "redis":
		return indexed.NewRedisStorage(cfg.RedisAddr, "", 0, cfg.RedisReplicas)
	case "postgres":
		return indexed.NewPostgresStorage(context.Background(), cfg.PostgresDSN, cfg.RedisReplicas)
	case "memory", "":
		return indexed.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown indexed storage driver %q", cfg.IndexedDriver)
	}
}

func newBlobStorage(ctx context.Context, cfg config.StorageConfig) (blob.Storage, error) {
	switch cfg.BlobDriver {
	case "s3":
		return blob.NewS3Storage(ctx, blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	case "filesystem":
		return blob.NewFilesystemStorage(cfg.BlobRoot)
	case "memory", "":
		return blob.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown blob storage driver %q", cfg.BlobDriver)
	}
}
