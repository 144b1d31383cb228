package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/config"
	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/network"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				level, _ := cfg.Level()
				setLogLevel(level)
			}

			var w io.Writer
			switch output {
			case "discard":
			case "jsonl":
				w = cmd.OutOrStdout()
			default:
				return errors.Errorf("unsupported output %q: use 'discard' or 'jsonl'", output)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, w, prometheus.NewRegistry())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "arrowrow.yaml", "Config file (.yaml or .toml)")
	cmd.Flags().StringVar(&output, "output", "discard", "Row output (discard, jsonl)")
	return cmd
}

// serve runs every configured transport until ctx is done. Rows are written to
// out as JSON lines, or dropped if out is nil.
func serve(ctx context.Context, cfg *config.Config, out io.Writer, reg *prometheus.Registry) error {
	rt, err := cfg.RowType()
	if err != nil {
		return err
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(cfg.Metrics.Namespace, reg)

	d, err := deserializer.New(rt, rowdata.InternalTypeInfo(rt), deserializer.WithMetrics(metrics))
	if err != nil {
		return err
	}
	if err := d.Open(ctx); err != nil {
		return err
	}

	sink := api.DiscardSink
	if out != nil {
		sink = api.NewJSONLinesSink(out, rt)
	}
	handler := api.NewArrowHandler(d, sink, metrics)
	auth := cfg.Authenticator()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	// stops whatever already started
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if cfg.TCP.Address != "" {
		tcp := api.NewArrowServer(handler, auth, metrics)
		if err := tcp.StartAsync(cfg.TCP.Address); err != nil {
			return abort(err)
		}
		g.Go(func() error {
			<-gctx.Done()
			tcp.Stop()
			return nil
		})
	}

	if cfg.Flight.Address != "" {
		fc := api.DefaultFlightServerConfig()
		fc.Address = cfg.Flight.Address
		if cfg.Flight.MaxRecvMsgSize > 0 {
			fc.MaxRecvMsgSize = cfg.Flight.MaxRecvMsgSize
		}
		fs := api.NewFlightIngestServer(fc, handler, auth)
		if err := fs.Start(); err != nil {
			return abort(err)
		}
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return fs.Shutdown(sctx)
		})
	}

	if cfg.Zmq.Endpoint != "" {
		src := network.NewZmqSource(cfg.Zmq.Endpoint, handler)
		if err := src.Start(gctx); err != nil {
			return abort(err)
		}
		g.Go(func() error {
			<-gctx.Done()
			src.Stop()
			return nil
		})
	}

	if cfg.Metrics.Address != "" {
		ms := api.NewMetricsServer(cfg.Metrics.Address, reg)
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return ms.Shutdown(sctx)
		})
	}

	logger.WithField("schema", rt.String()).Info("arrowrow serving")
	err = g.Wait()
	logger.Info("arrowrow stopped")
	return err
}
