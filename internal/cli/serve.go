package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idilsaglam/board/internal/server"
)

func (r *runner) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the board API server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default from server.addr)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics on its own address (default from server.metrics_addr)"},
			&cli.StringFlag{Name: "token", Usage: "shared credential (default from server.token)", EnvVars: []string{"BOARD_SERVER_TOKEN"}},
			&cli.StringFlag{Name: "driver", Usage: "store driver: json, sqlite3, postgres, redis or memory"},
			&cli.StringFlag{Name: "dsn", Usage: "database DSN for sqlite3 and postgres"},
		},
		Action: r.serve,
	}
}

func (r *runner) serve(c *cli.Context) error {
	cfg := r.cfg
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if c.IsSet("metrics-addr") {
		cfg.Server.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("token") {
		cfg.Server.Token = c.String("token")
	}
	if c.IsSet("driver") {
		cfg.Store.Driver = c.String("driver")
	}
	if c.IsSet("dsn") {
		cfg.Store.DSN = c.String("dsn")
	}
	if cfg.Server.Token == "" {
		return usageError("serve: a shared credential is required (--token or BOARD_SERVER_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			r.logger.Warn("close store", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		Token:       cfg.Server.Token,
		BoardIDs:    cfg.Server.BoardIDs,
		MetricsAddr: cfg.Server.MetricsAddr,
	}, st, r.logger, reg)
	if err != nil {
		return err
	}
	if err := srv.Seed(ctx); err != nil {
		return err
	}
	r.logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error { return srv.RunMetrics(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("stopped")
	return nil
}
