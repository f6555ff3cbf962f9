package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mishakrpv/shoplist/internal/cart"
	"github.com/mishakrpv/shoplist/internal/catalog"
	"github.com/mishakrpv/shoplist/internal/config"
	"github.com/mishakrpv/shoplist/internal/httpserver"
	"github.com/mishakrpv/shoplist/internal/logging"
	"github.com/mishakrpv/shoplist/internal/metrics"
	"github.com/mishakrpv/shoplist/internal/mykafka"
	"github.com/mishakrpv/shoplist/internal/ordernum"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	e := echo.New()
	e.HideBanner = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	var producer *mykafka.Producer
	if cfg.KafkaAddress != "" {
		producer = mykafka.NewProducer([]string{cfg.KafkaAddress})
	}

	repo := &cart.GormRepo{DB: db}
	cat := &catalog.GormCatalog{DB: db}
	cartService := cart.NewService(repo, cat, ordernum.Rand{}, metrics.New())

	cartHandler := &httpserver.CartHTTP{
		Svc:      cartService,
		Producer: producer,
	}

	httpserver.Register(e, &httpserver.Deps{
		CartHandler: cartHandler,
		Logger:      logger,
	})

	go func() {
		logger.Info("starting shoplist server", "port", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}

	if err := producer.Close(); err != nil {
		logger.Error("kafka close", "error", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}

	logger.Info("server stopped")
}
