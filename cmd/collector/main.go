package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/placement-engine/internal/config"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
	"github.com/danielpatrickdp/placement-engine/internal/telemetry"
)

// #region main
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("collector stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	lis, err := net.Listen("tcp", cfg.CollectorAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.CollectorAddr, err)
	}

	collector := telemetry.NewCollector(store, logger)
	srv := grpc.NewServer()
	telemetry.Register(srv, collector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("collector listening", "addr", lis.Addr().String(), "db", cfg.DBPath)
		if err := srv.Serve(lis); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.GracefulStop()
		return nil
	})
	err = g.Wait()
	logger.Info("collector stopped", "received", collector.Received())
	return err
}

// #endregion main
