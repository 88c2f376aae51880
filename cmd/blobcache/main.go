// Command blobcache serves a remote blob table over HTTP through an
// in-memory LRU cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/blobcache"
	"github.com/IvanBrykalov/blobcache/internal/config"
	"github.com/IvanBrykalov/blobcache/internal/logging"
	"github.com/IvanBrykalov/blobcache/internal/server"
	"github.com/IvanBrykalov/blobcache/metrics/prom"
	"github.com/IvanBrykalov/blobcache/remote"
	"github.com/IvanBrykalov/blobcache/remote/chunked"
	"github.com/IvanBrykalov/blobcache/remote/s3"
)

const shutdownTimeout = 10 * time.Second

type cliOptions struct {
	configPath string
	checkOnly  bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts))
}

// run executes the service and returns the process exit code.
func run(ctx context.Context, opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stdErr, "init logger: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["backend"] = cfg.Remote.Backend
		fields["table"] = cfg.Remote.Table
		fields["result"] = "ok"
		logger.WithFields(fields).Info("configuration is valid")
		fmt.Fprintln(stdOut, "ok")
		return 0
	}

	store, err := buildRemote(cfg.Remote)
	if err != nil {
		fmt.Fprintf(stdErr, "build remote: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prom.New(reg, "blobcache", "", prometheus.Labels{"table": cfg.Remote.Table})

	h, err := blobcache.New(cfg.Handler(),
		blobcache.WithRemote(store),
		blobcache.WithLogger(logger),
		blobcache.WithMetrics(metrics))
	if err != nil {
		fmt.Fprintf(stdErr, "build cache: %v\n", err)
		return 1
	}
	defer func() { _ = h.Close() }()

	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Handler:  h,
		Gatherer: reg,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "build server: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen"] = cfg.Listen
	fields["backend"] = cfg.Remote.Backend
	fields["chunked"] = cfg.Remote.Chunked
	fields["endpoint"] = h.Table().Redacted().Endpoint
	fields["table"] = h.Table().Table
	logger.WithFields(fields).Info("configuration loaded")

	if err := serve(ctx, app, cfg.Listen, logger); err != nil {
		fmt.Fprintf(stdErr, "http server: %v\n", err)
		return 1
	}
	return 0
}

// buildRemote selects the origin backend and optionally layers the chunked
// format on top of it.
func buildRemote(rc config.RemoteConfig) (remote.Store, error) {
	table := remote.TableConfig{Endpoint: rc.Endpoint, Auth: rc.Auth, Table: rc.Table}

	var (
		store remote.Store
		err   error
	)
	switch rc.Backend {
	case config.BackendS3:
		store, err = s3.New(table, s3.WithRegion(rc.Region))
	default:
		store, err = remote.NewHTTPStore(table, remote.WithRequestTimeout(rc.RequestTimeout))
	}
	if err != nil {
		return nil, err
	}
	if rc.Chunked {
		store = chunked.New(store,
			chunked.WithChunkSize(rc.ChunkSize),
			chunked.WithParallelism(rc.Parallelism))
	}
	return store, nil
}

// serve listens until ctx is cancelled and then shuts the app down.
func serve(ctx context.Context, app *fiber.App, addr string, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"action": "listen", "addr": addr}).Info("http server starting")
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		return err
	}
	return <-errCh
}

// parseCLIFlags resolves the config path from -config, then BLOBCACHE_CONFIG.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("blobcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
	)
	fs.StringVar(&configFlag, "config", "", "config file path (default ./blobcache.toml, overridden by BLOBCACHE_CONFIG)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parse flags: %w", err)
	}

	path := os.Getenv("BLOBCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "blobcache.toml"
	}
	return cliOptions{configPath: path, checkOnly: checkOnly}, nil
}
