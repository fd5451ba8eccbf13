// Server runs the cross-device handoff HTTP API.
//
// With DATABASE_URL and REDIS_ADDR set it uses Postgres and Redis; with
// either empty it falls back to in-process stores, which is enough for a
// single-instance dev setup.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"foxtrail/handoff/internal/audit"
	auditrepo "foxtrail/handoff/internal/audit/repository"
	"foxtrail/handoff/internal/config"
	"foxtrail/handoff/internal/db"
	"foxtrail/handoff/internal/identity"
	"foxtrail/handoff/internal/security"
	"foxtrail/handoff/internal/server"
	"foxtrail/handoff/internal/telemetry"
	telemetryotel "foxtrail/handoff/internal/telemetry/otel"
	"foxtrail/handoff/internal/telemetry/producer"
	"foxtrail/handoff/internal/transfer/handler"
	"foxtrail/handoff/internal/transfer/notify"
	"foxtrail/handoff/internal/transfer/qr"
	"foxtrail/handoff/internal/transfer/repository"
	"foxtrail/handoff/internal/transfer/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	var (
		sessionRepo repository.Repository
		auditRepo   auditrepo.Repository
		pinger      server.Pinger
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
		sessionRepo = repository.NewPostgresRepository(sqlDB)
		auditRepo = auditrepo.NewPostgresRepository(sqlDB)
		pinger = sqlDB
		log.Printf("server: using postgres session store")
	} else {
		sessionRepo = repository.NewMemoryRepository()
		log.Printf("server: DATABASE_URL not set, using in-memory session store")
	}

	var broker notify.Broker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		broker = notify.NewRedisBroker(client)
		log.Printf("server: using redis change feed at %s", cfg.RedisAddr)
	} else {
		broker = notify.NewMemoryBroker()
		log.Printf("server: REDIS_ADDR not set, using in-process change feed")
	}

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "foxtrail-handoff", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	var emitter telemetry.EventEmitter
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer kp.Close()
		emitter = kp
		log.Printf("server: emitting telemetry to kafka topic %s", cfg.TelemetryKafkaTopic)
	} else {
		emitter = telemetryotel.NewEmitter(providers)
	}

	mgr := service.NewManager(sessionRepo, broker, audit.NewLogger(auditRepo), emitter, cfg.SessionTTL())
	ident := identity.NewJWTProvider(tokens)
	h := handler.New(mgr, &qr.PNGRenderer{Size: qr.DefaultSize}, ident)
	router := server.NewRouter(h, server.AuthMiddleware(tokens), pinger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("server: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("server: shutting down...")
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: telemetry shutdown: %v", err)
	}
	log.Println("server: stopped")
}
