package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"queryrpc/engine"
	"queryrpc/middleware"
	"queryrpc/queryservice"
	"queryrpc/registry"
	"queryrpc/server"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the query server",
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("listen", "0.0.0.0:7070", "address to listen on")
	serveCmd.Flags().String("advertise", "", "address registered for clients; defaults to the listen address")
	serveCmd.Flags().StringSlice("table", nil, "tab-separated table file to load, repeatable; the first line is the header")
	serveCmd.Flags().StringSlice("etcd-endpoints", nil, "etcd endpoints for service registration; empty disables registration")
	serveCmd.Flags().String("metrics-listen", "", "address for the Prometheus /metrics endpoint; empty disables it")
	serveCmd.Flags().Float64("rate-limit", 0, "max requests per second per server; 0 disables limiting")
	serveCmd.Flags().Int("rate-burst", 10, "rate limiter burst size")
	serveCmd.Flags().Duration("request-timeout", 0, "per-request handler timeout; 0 disables it")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	eng := engine.New(engine.WithLogger(logger))
	for _, path := range viper.GetStringSlice("table") {
		if err := eng.LoadFile(path); err != nil {
			return errors.Wrapf(err, "load table %s", path)
		}
	}

	srv := server.NewServer(func() queryservice.Handler {
		return eng.NewSession()
	}, server.WithLogger(logger))

	srv.Use(middleware.Logging(logger))
	srv.Use(middleware.Metrics())
	if limit := viper.GetFloat64("rate-limit"); limit > 0 {
		srv.Use(middleware.RateLimit(limit, viper.GetInt("rate-burst")))
	}
	if timeout := viper.GetDuration("request-timeout"); timeout > 0 {
		srv.Use(middleware.Timeout(timeout))
	}

	var reg registry.Registry
	if endpoints := viper.GetStringSlice("etcd-endpoints"); len(endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(endpoints, logger)
		if err != nil {
			return errors.Wrap(err, "connect etcd")
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	if addr := viper.GetString("metrics-listen"); addr != "" {
		go serveMetrics(addr, logger)
	}

	listen := viper.GetString("listen")
	advertise := viper.GetString("advertise")
	if advertise == "" {
		advertise = listen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve("tcp", listen, advertise, reg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := srv.Shutdown(shutdownGrace); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
		return <-errCh
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})
	logger.Info("metrics endpoint up", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint failed", zap.Error(err))
	}
}
