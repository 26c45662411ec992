package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/conquest/internal/api"
	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/config"
	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/outbox"
	"example.com/conquest/internal/places"
	"example.com/conquest/internal/store"
	httptransport "example.com/conquest/internal/transport/http"
)

func main() {
	cfg := config.Load()

	rules, err := config.LoadRules(cfg.GameRulesPath)
	if err != nil {
		log.Fatalf("failed to load game rules: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	var dispatcher *outbox.Dispatcher
	if st.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(st.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithClaimLease(cfg.OutboxClaimLease))
		go dispatcher.Start(ctx)
	} else {
		log.Printf("store driver %s: outbox events are recorded but not published", cfg.StoreDriver)
	}

	service := domain.NewService(st.Repository, domain.WithRules(rules.Policy, rules.Missions))

	var searcher api.PlaceSearcher
	if cfg.PlacesAPIKey != "" {
		searcher = places.NewClient(cfg.PlacesURL, cfg.PlacesHost, cfg.PlacesAPIKey)
	}

	mux := http.NewServeMux()
	api.NewHandler(service, searcher).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		auth.PublicPaths("/healthz", "/metrics"),
	)

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress},
		httptransport.Chain(mux,
			httptransport.RequestLogger(nil),
			httptransport.CORS(cfg.CORSOrigin),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("conquest api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
