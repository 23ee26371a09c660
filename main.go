package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-checkin/internal/analytics"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/sse"
	ticket_db "ms-checkin/internal/tickets/db"
	qr "ms-checkin/internal/tickets/qr_payload"
	rediswrap "ms-checkin/internal/tickets/redis"
	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/tickets/ticket_api"
)

// prepareSchema brings the database to the schema this build expects and
// reports which optional columns are present.
func prepareSchema(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) (ticket_db.SchemaCaps, error) {
	switch {
	case cfg.Database.Driver == database.DriverSQLite:
		if err := ticket_db.CreateSchema(ctx, bunDB); err != nil {
			return ticket_db.SchemaCaps{}, fmt.Errorf("failed to create sqlite schema: %w", err)
		}
		log.Info("DATABASE", "SQLite schema ensured")
	case cfg.Migrations.AutoMigrate:
		runner := migrations.NewRunner(bunDB, log)
		err := runner.RunMigrations()
		if closeErr := runner.Close(); closeErr != nil {
			log.Warn("MIGRATE", fmt.Sprintf("Failed to close migrator: %v", closeErr))
		}
		if err != nil {
			return ticket_db.SchemaCaps{}, err
		}
	default:
		log.Info("MIGRATE", "AUTO_MIGRATE disabled, using the schema as found")
	}

	caps, err := ticket_db.DetectSchema(ctx, bunDB)
	if err != nil {
		return caps, fmt.Errorf("failed to detect schema: %w", err)
	}
	if !caps.ScanCount {
		log.Warn("DATABASE", "tickets.scan_count is missing, scan counts will read as zero")
	}
	return caps, nil
}

// setupLiveFanOut picks how attendance events reach the SSE clients of every
// instance: Kafka when enabled, else Redis pub/sub, else in-process only.
func setupLiveFanOut(ctx context.Context, cfg *config.Config, cache *rediswrap.Redis, emitter *sse.AttendanceEmitter, log *logger.Logger) (tickets.Publisher, func()) {
	if cfg.Kafka.Enabled {
		topics := kafka.Topics{
			TicketScanned: cfg.Kafka.Topics.TicketScanned,
			EventReset:    cfg.Kafka.Topics.EventReset,
		}
		names := []string{topics.TicketScanned, topics.EventReset}

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, names, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		if existing, err := kafka.ListTopics(ctx, cfg.Kafka.Brokers); err == nil {
			log.Debug("KAFKA", fmt.Sprintf("Broker topics: %v", existing))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, topics, log)
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, names, cfg.Kafka.GroupID, log)
		go consumer.Start(ctx, emitter.Emit)

		return producer, func() {
			if err := producer.Close(); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
			}
			if err := consumer.Close(); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
			}
		}
	}

	if cache != nil {
		go func() {
			if err := cache.Relay(ctx, emitter.Emit, nil); err != nil {
				log.Error("REDIS", fmt.Sprintf("Live relay stopped: %v", err))
			}
		}()
		return cache, func() {}
	}

	log.Info("SSE", "No broker configured, live updates stay on this instance")
	return emitter, func() {}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger(cfg.LogDir)
	defer log.Close()

	log.Info("APP", "Starting Check-in Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	caps, err := prepareSchema(ctx, cfg, bunDB, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	store := ticket_db.New(bunDB, caps, cfg.Scan.CountRepeatScans)
	service := tickets.NewTicketService(
		store,
		auth.NewGuard(store),
		analytics.NewService(analytics.NewDB(bunDB, caps.ScanCount)),
		log,
	)
	service.Metrics = metrics.NewRecorder()
	service.Timeout = cfg.Scan.Timeout

	var cache *rediswrap.Redis
	if cfg.Redis.Enabled {
		client, err := rediswrap.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unavailable, stats cache disabled: %v", err))
		} else {
			defer client.Close()
			cache = rediswrap.NewRedis(client, cfg.Redis.StatsTTL, log)
			service.Cache = cache
			log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
		}
	}

	emitter := sse.NewAttendanceEmitter(func(delta int) {
		metrics.LiveSubscribers.Add(float64(delta))
	})
	publisher, closeFanOut := setupLiveFanOut(ctx, cfg, cache, emitter, log)
	defer closeFanOut()
	service.Publisher = publisher

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	handler := &ticket_api.Handler{
		TicketService:  service,
		DB:             store,
		Logger:         log,
		CookieSecure:   cfg.Server.CookieSecure,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if producer, ok := publisher.(*kafka.Producer); ok {
		handler.Broker = producer
	}
	if cfg.QRSecret != "" {
		sealer, err := qr.NewSealer(cfg.QRSecret)
		if err != nil {
			log.Fatal("CONFIG", fmt.Sprintf("Invalid QR secret: %v", err))
		}
		handler.QR = sealer
	} else {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, scans must carry a plain ticket id")
	}

	live := &ticket_api.SSEHandler{
		TicketService: service,
		Emitter:       emitter,
		Logger:        log,
		Heartbeat:     15 * time.Second,
	}

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     ticket_api.NewRouter(handler, live, verifier, metrics.Handler()),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	if cfg.Server.WriteTimeout > 0 {
		server.Handler = withWriteDeadline(server.Handler, cfg.Server.WriteTimeout)
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Check-in Service shutdown complete")
	}
	service.Drain()
}

// withWriteDeadline applies the write timeout to every route except the
// live stream.
func withWriteDeadline(next http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/live") {
			rc := http.NewResponseController(w)
			_ = rc.SetWriteDeadline(time.Now().Add(timeout))
		}
		next.ServeHTTP(w, r)
	})
}
