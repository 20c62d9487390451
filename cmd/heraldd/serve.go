package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/herald/api"
	audithook "github.com/xraph/herald/audit_hook"
	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/engine"
	"github.com/xraph/herald/notify"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/stream"
	"github.com/xraph/herald/trigger"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queues, schedulers and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel, os.Stdout))
		},
	}
	cmd.Flags().String(flagAddr, "", "HTTP listen address (env: HERALD_HTTP_ADDR)")
	return cmd
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer st.Close()

	if err := store.Prepare(ctx, st); err != nil {
		return err
	}

	bo, err := backoff.FromName(cfg.BackoffName, cfg.Engine.BackoffBase)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	broker := stream.NewBroker(logger)
	opts := []engine.Option{
		engine.WithExtension(broker),
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(logger),
		engine.WithBackoff(bo),
		engine.WithRegisterer(reg),
		engine.WithSummaryChannel(cfg.SummaryChannelID),
	}

	if cfg.Audit {
		rec := audithook.NewSlogRecorder(logger.With(slog.String("component", "audit")))
		opts = append(opts, engine.WithExtension(audithook.New(rec, audithook.WithLogger(logger))))
	}

	sender, closeSender, err := buildSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()
	if sender != nil {
		opts = append(opts, engine.WithDeliveryExecutor(notify.NewExecutor(sender)))
	}
	if cfg.HassURL != "" {
		ha := trigger.NewHomeAssistant(cfg.HassURL, cfg.HassToken)
		opts = append(opts, engine.WithTriggerExecutor(trigger.NewExecutor(ha)))
	} else {
		logger.Warn("HASS_URL not set, trigger jobs are disabled")
	}

	eng, err := engine.New(st, opts...)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.New(eng, api.WithGatherer(reg), api.WithLogger(logger), api.WithBroker(broker)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never go idle on their own.
	srv.RegisterOnShutdown(func() { _ = broker.OnShutdown(context.WithoutCancel(ctx)) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.ShutdownTimeout+5*time.Second)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		engErr := eng.Stop(shutdownCtx)
		return errors.Join(httpErr, engErr)
	})
	return g.Wait()
}

// buildSender picks the delivery backend: Discord when a token is set,
// otherwise AMQP when a URL is set.
func buildSender(cfg Config, logger *slog.Logger) (notify.Sender, func(), error) {
	noop := func() {}
	switch {
	case cfg.DiscordToken != "":
		sess, err := notify.OpenDiscord(cfg.DiscordToken)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("delivery via discord", slog.String("default_channel", cfg.DiscordChannelID))
		return notify.NewDiscordSender(sess, cfg.DiscordChannelID), noop, nil
	case cfg.AMQPURL != "":
		s, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("delivery via amqp", slog.String("exchange", cfg.AMQPExchange))
		return s, func() { _ = s.Close() }, nil
	}
	logger.Warn("no DISCORD_TOKEN or AMQP_URL set, delivery jobs are disabled")
	return nil, noop, nil
}
