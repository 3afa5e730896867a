package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canteen-system/internal/auth"
	"canteen-system/internal/catalog"
	"canteen-system/internal/events"
	"canteen-system/internal/hub"
	orderdb "canteen-system/internal/order/db"
	orderhandler "canteen-system/internal/order/handler"
	orderservice "canteen-system/internal/order/service"
	subdb "canteen-system/internal/subscription/db"
	subhandler "canteen-system/internal/subscription/handler"
	subservice "canteen-system/internal/subscription/service"
	"canteen-system/internal/ws"
	"canteen-system/pkg/config"
	"canteen-system/pkg/db"
	"canteen-system/pkg/logger"
	"canteen-system/pkg/rabbitmq"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	log := logger.NewLogger("canteen-system")
	if err := run(log); err != nil {
		log.Error("shutdown", "fatal", "Service terminated with error", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.ConnectDB(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	mb, err := rabbitmq.ConnectRabbitMQ(&cfg.RabbitMQ, log)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer mb.Close()

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	broadcastHub := hub.NewHub(log.WithService("hub"))
	publisher := events.NewPublisher(mb)

	orderRepo := orderdb.NewOrderRepo(pool, log.WithService("order-repo"))
	orders := orderservice.NewOrderService(orderRepo, publisher, cfg.QR.Expiry, log.WithService("order-service"))

	subRepo := subdb.NewSubscriptionRepo(pool, log.WithService("subscription-repo"))
	subscriptions := subservice.NewSubscriptionService(subRepo, log.WithService("subscription-service"))

	catalogRepo := catalog.NewRepo(pool)

	subscriber := events.NewSubscriber(mb, broadcastHub, log.WithService("subscriber"))
	subscriberErr := make(chan error, 1)
	go func() {
		subscriberErr <- subscriber.Start(ctx)
	}()

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Route("/api", func(r chi.Router) {
		r.Use(verifier.Middleware)
		orderhandler.NewOrderHandler(orders, log.WithService("order-handler")).Register(r)
		subhandler.NewSubscriptionHandler(subscriptions, log.WithService("subscription-handler")).Register(r)
		catalog.NewHandler(catalogRepo).Register(r)
	})
	router.Mount("/ws", ws.NewHandler(broadcastHub, orders, verifier, log.WithService("ws")).Routes())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("startup", "server_started", fmt.Sprintf("HTTP server listening on :%d", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		} else {
			serverErr <- nil
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-subscriberErr:
		if err != nil {
			return fmt.Errorf("event subscriber: %w", err)
		}
	}

	log.Info("shutdown", "graceful_shutdown_started", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	broadcastHub.Shutdown()

	log.Info("shutdown", "graceful_shutdown_completed", "Shut down gracefully")
	return nil
}
