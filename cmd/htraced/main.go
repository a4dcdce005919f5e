// Command htraced runs the trace-storage daemon: it loads configuration,
// opens (or creates) the shard set, wires the ingestor, query executor,
// and metrics sink together, and serves the REST and binary RPC
// boundary adapters until signaled to shut down.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/htrace/htraced/pkg/config"
	"github.com/htrace/htraced/pkg/hstore"
	"github.com/htrace/htraced/pkg/ingest"
	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/metrics"
	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/query"
	"github.com/htrace/htraced/pkg/rest"
	"github.com/htrace/htraced/pkg/rpc"
	"github.com/htrace/htraced/pkg/shard"
	"github.com/htrace/htraced/pkg/startupnotify"
)

// ReleaseVersion and GitVersion are stamped at build time via
// -ldflags; their zero values are reported verbatim when unset.
var (
	ReleaseVersion = "dev"
	GitVersion     = "unknown"
)

var (
	configFile string
	overrides  []string
)

func main() {
	root := &cobra.Command{
		Use:   "htraced",
		Short: "Distributed-tracing span storage daemon",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML defaults file")
	root.PersistentFlags().StringArrayVarP(&overrides, "define", "D", nil, "override a config key, as key=value")

	root.AddCommand(serveCmd(), createCmd(), clearCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon's release and git version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("htraced %s (%s)\n", ReleaseVersion, GitVersion)
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Lay out a fresh shard set in the configured directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dirs := cfg.StringList(config.KeyDataStoreDirectories)
			set, err := hstore.Create(dirs)
			if err != nil {
				return err
			}
			return set.Close()
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Wipe the configured shard directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dirs := cfg.StringList(config.KeyDataStoreDirectories)
			return hstore.Clear(dirs)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon until signaled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile, overrides)
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Init(cfg.LogConfig())

	dirs := cfg.StringList(config.KeyDataStoreDirectories)
	if len(dirs) == 0 {
		return fmt.Errorf("%s is required", config.KeyDataStoreDirectories)
	}
	clear := cfg.Bool(config.KeyDataStoreClear, false)

	set, err := hstore.Open(dirs, clear)
	if err != nil {
		return fmt.Errorf("opening shard set: %w", err)
	}

	metricsCollectors := metrics.New()
	metricsCollectors.MustRegister(prometheus.DefaultRegisterer)

	var prevTotals map[string]metricssink.Totals
	sink := metricssink.New(
		metricssink.WithMaxAddrEntries(cfg.Int(config.KeyMetricsMaxAddrEntries, metricssink.DefaultMaxAddrEntries)),
		metricssink.WithHeartbeatPeriod(time.Duration(cfg.Int(config.KeyMetricsHeartbeatMs, 1000))*time.Millisecond),
		metricssink.WithHeartbeatObserver(func(totals map[string]metricssink.Totals) {
			metricsCollectors.ObserveHeartbeat(totals, prevTotals)
			prevTotals = totals
		}),
	)
	defer sink.Close()

	writers := make([]*shard.Writer, len(set.Shards))
	for _, sh := range set.Shards {
		writers[sh.Info.ShardIndex] = shard.NewWriter(sh.Info.ShardIndex, sh.Store, sink, shard.Config{})
	}
	defer func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}()

	ingestor := ingest.New(writers, sink, ingest.WithDefaultTracerID(""))

	queryShards := make([]query.Shard, len(writers))
	for i, w := range writers {
		queryShards[i] = query.Shard{Index: w.Index(), Store: w.Store()}
	}
	sort.Slice(queryShards, func(i, j int) bool { return queryShards[i].Index < queryShards[j].Index })
	exec := query.NewExecutor(queryShards)

	webAddr := cfg.String(config.KeyWebAddress, "127.0.0.1:9096")
	hrpcAddr := cfg.String(config.KeyHrpcAddress, "127.0.0.1:9075")

	restServer := rest.NewServer(exec, ingestor, sink, rest.BuildInfo{ReleaseVersion: ReleaseVersion, GitVersion: GitVersion})
	httpServer := &http.Server{Addr: webAddr, Handler: restServer.Router()}

	lis, err := net.Listen("tcp", hrpcAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", hrpcAddr, err)
	}
	grpcServer := rpc.NewServer()
	rpc.RegisterServer(grpcServer, &rpc.Adapter{Ingestor: ingestor, Executor: exec})

	errc := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errc <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	if addr := cfg.String(config.KeyStartupNotifyAddress, ""); addr != "" {
		if err := startupnotify.Notify(addr, webAddr, hrpcAddr); err != nil {
			return fmt.Errorf("startup notification: %w", err)
		}
	}
	log.Logger.Info().Str("web", webAddr).Str("hrpc", hrpcAddr).Msg("htraced started")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errc:
		log.Logger.Error().Err(err).Msg("server failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	grpcServer.GracefulStop()
	return nil
}
