// Command reactord runs one device's reactive runtime process: it loads
// configuration, brings up the address book, binds the TCP listener, and
// runs the decode/dispatch pipeline until an OS signal asks it to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reactormesh/devrt/internal/addrbook"
	"github.com/reactormesh/devrt/internal/config"
	"github.com/reactormesh/devrt/internal/decoder"
	"github.com/reactormesh/devrt/internal/dispatch"
	"github.com/reactormesh/devrt/internal/logging"
	"github.com/reactormesh/devrt/internal/nativefn"
	"github.com/reactormesh/devrt/internal/observability"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/transport"
	"github.com/reactormesh/devrt/internal/wire"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "reactord",
	Short:         "Run a reactive device runtime process",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a devrt.yaml config file")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "reactord: "+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath, rootCmd.Flags())
	if err != nil {
		return fmt.Errorf("reactord: %w", err)
	}

	logger := logging.New(parseLevel(cfg.LogLevel))
	logger.Info("reactord_starting", "device", cfg.DeviceName, "listen_port", cfg.ListenPort)

	book, err := addrbook.Load(cfg.AddressBookPath, logger)
	if err != nil {
		return fmt.Errorf("reactord: address book: %w", err)
	}
	if cfg.AddressBookWatch {
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		if err := book.Watch(stop); err != nil {
			logger.Warn("reactord: address book watch disabled", "err", err)
		}
	}

	natives := nativefn.NewRegistry()
	rt := runtime.New(cfg.DeviceName, "", natives, book)
	rt.InitSystemEvents()

	listenAddr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort)
	inbound := transport.NewQueue[string](cfg.InboundQueueCapacity)
	outbound := transport.NewQueue[transport.OutboundFrame](cfg.OutboundQueueCapacity)
	events := transport.NewQueue[wire.Message](cfg.EventQueueCapacity)

	ln, err := transport.Listen(listenAddr, inbound, logger)
	if err != nil {
		return fmt.Errorf("reactord: listen on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	rt.SelfAddr = "tcp://" + ln.Addr().String()
	book.Set(cfg.DeviceName, rt.SelfAddr)
	logger.Info("reactord_bound", "addr", rt.SelfAddr)

	sender := transport.NewSender(outbound, logger)
	queueSender := &transport.QueueSender{Output: outbound, Arena: rt.Arena}
	dec := decoder.New(inbound, events, rt, logger)
	disp := dispatch.New(events, rt, queueSender, logger)

	var shutdownTracer func(context.Context) error
	if cfg.TracingEnabled {
		shutdownTracer, err = observability.InitTracer(cfg.DeviceName, cfg.TracingEndpoint)
		if err != nil {
			logger.Warn("reactord: tracing disabled", "err", err)
			shutdownTracer = nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ln.Serve(gctx) })
	g.Go(func() error { return sender.Run(gctx) })
	g.Go(func() error { return dec.Run(gctx) })
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error { return pollQueueDepths(gctx, inbound, outbound, events) })

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.Close()
	})

	logger.Info("reactord_ready", "metrics_addr", cfg.MetricsAddr)
	err = g.Wait()

	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	if err != nil && gctx.Err() == nil {
		return err
	}
	logger.Info("reactord_stopped")
	return nil
}

// pollQueueDepths periodically reports each queue's occupancy to
// internal/observability's gauges, until ctx is done.
func pollQueueDepths(ctx context.Context, inbound *transport.Queue[string], outbound *transport.Queue[transport.OutboundFrame], events *transport.Queue[wire.Message]) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			observability.SetQueueDepth("inbound", inbound.Len())
			observability.SetQueueDepth("outbound", outbound.Len())
			observability.SetQueueDepth("events", events.Len())
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
