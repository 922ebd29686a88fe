package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nckslvrmn/drop/internal/config"
	"github.com/nckslvrmn/drop/internal/handlers"
	custommw "github.com/nckslvrmn/drop/internal/middleware"
	"github.com/nckslvrmn/drop/internal/records"
	"github.com/nckslvrmn/drop/internal/storage"
	"github.com/nckslvrmn/drop/internal/storage/types"
	"golang.org/x/time/rate"
)

func main() {
	e := echo.New()
	e.Logger.SetLevel(log.INFO)

	cfg, err := config.Load()
	if err != nil {
		e.Logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.Storage, newLogger("storage"))
	if err != nil {
		e.Logger.Fatal(err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	if purger, ok := store.(types.Purger); ok && cfg.SweepInterval > 0 {
		go storage.RunSweeper(ctx, purger, cfg.SweepInterval, newLogger("sweeper"))
	}

	manager := records.NewManager(store, records.WithLogger(newLogger("records")))

	e.IPExtractor = custommw.IPExtractor(cfg.ClientIPHeader)

	e.Use(custommw.Brotli())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return custommw.AcceptsBrotli(c.Request())
		},
	}))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))

	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.HideBanner = true
	e.HidePort = true

	handlers.New(manager, cfg.ProjectName).Register(e)

	go func() {
		e.Logger.Infof("%s listening on %s", cfg.ProjectName, cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	e.Logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}

	e.Logger.Info("Server shutdown complete")
}

func newLogger(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetLevel(log.INFO)
	return l
}
