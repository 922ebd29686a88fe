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

	"github.com/labstack/gommon/log"
	"github.com/nckslvrmn/drop/internal/config"
	"github.com/nckslvrmn/drop/internal/migrate"
	"github.com/nckslvrmn/drop/internal/storage"
)

func main() {
	batch := flag.Int("batch", migrate.DefaultBatchSize, "number of records copied concurrently")
	attempts := flag.Int("attempts", migrate.DefaultAttempts, "write attempts per record")
	retryDelay := flag.Duration("retry-delay", migrate.DefaultRetryDelay, "delay between write attempts")
	reportPath := flag.String("report", "migration-report.json", "path of the JSON report")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Copies every live record from the SOURCE_ store to the DEST_ store.")
		fmt.Fprintln(flag.CommandLine.Output(), "Both stores read the server's storage variables with a prefix,")
		fmt.Fprintln(flag.CommandLine.Output(), "for example SOURCE_REDIS_URL and DEST_DYNAMO_TABLE.")
		fmt.Fprintln(flag.CommandLine.Output())
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New("migrate")
	logger.SetLevel(log.INFO)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *batch, *attempts, *retryDelay, *reportPath); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, batch, attempts int, retryDelay time.Duration, reportPath string) error {
	srcCfg, err := config.LoadStorageConfig("SOURCE_")
	if err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	dstCfg, err := config.LoadStorageConfig("DEST_")
	if err != nil {
		return fmt.Errorf("destination config: %w", err)
	}

	src, err := storage.New(ctx, *srcCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	source, ok := src.(migrate.Source)
	if !ok {
		return fmt.Errorf("source backend %T cannot list its keys", src)
	}

	dst, err := storage.New(ctx, *dstCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	if closer, ok := dst.(io.Closer); ok {
		defer closer.Close()
	}

	m := &migrate.Migrator{
		Source:     source,
		Dest:       dst,
		BatchSize:  batch,
		Attempts:   attempts,
		RetryDelay: retryDelay,
		Logger:     logger,
	}

	report, runErr := m.Run(ctx)
	if report != nil {
		if err := report.WriteFile(reportPath); err != nil {
			logger.Error(err)
		} else {
			logger.Infof("Report written to %s", reportPath)
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d records failed to migrate", report.Failed)
	}
	return nil
}
