package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campushq/roombook/internal/audit"
	"github.com/campushq/roombook/internal/booking"
	"github.com/campushq/roombook/internal/cache"
	"github.com/campushq/roombook/internal/handlers"
	"github.com/campushq/roombook/internal/migrate"
	"github.com/campushq/roombook/internal/notify"
	"github.com/campushq/roombook/internal/outbox"
	"github.com/campushq/roombook/internal/storage"
	"github.com/campushq/roombook/libs/config"
	"github.com/campushq/roombook/libs/db"
	"github.com/campushq/roombook/libs/httpx"
	"github.com/campushq/roombook/libs/kafkax"
	otelx "github.com/campushq/roombook/libs/otel"
	"github.com/campushq/roombook/libs/runtime"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "roombook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := migrate.Up(ctx, pool, logger); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository(pool)
	bookingStore := storage.NewBookingStore(pool, outboxRepo)
	roomRepo := storage.NewRoomRepository(pool)
	notifier := notify.New(pool, outboxRepo)
	auditor := audit.NewRepository(pool, outboxRepo)

	var availabilityCache booking.AvailabilityCache
	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		ttl := 5 * time.Minute
		if raw := config.String("AVAILABILITY_CACHE_TTL", ""); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil && d > 0 {
				ttl = d
			}
		}
		availabilityCache = cache.NewAvailability(rdb, ttl, logger)
		logger.Info("availability cache enabled (redis)", "redis_addr", addr, "ttl", ttl)
	} else {
		logger.Info("availability cache disabled; serving day views from the store")
	}

	svc := booking.NewService(booking.Config{
		Store:       bookingStore,
		Cache:       availabilityCache,
		Notifier:    notifier,
		Auditor:     auditor,
		Logger:      logger,
		AutoApprove: isTruthy(config.String("BOOKING_AUTO_APPROVE", "false")),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(svc, bookingStore, logger)
	roomHandler := handlers.NewRoomHandler(roomRepo, logger)
	notificationHandler := handlers.NewNotificationHandler(notifier, logger)
	auditHandler := handlers.NewAuditHandler(auditor, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/rooms", roomHandler.List)
	mux.HandleFunc("/api/v1/rooms/get", roomHandler.Get)
	mux.HandleFunc("/api/v1/admin/rooms", roomHandler.Create)
	mux.HandleFunc("/api/v1/admin/rooms/update", roomHandler.Update)
	mux.HandleFunc("/api/v1/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.ListBookings)
	mux.HandleFunc("/api/v1/bookings/override", bookingHandler.Override)
	mux.HandleFunc("/api/v1/requests", requestsMux(bookingHandler))
	mux.HandleFunc("/api/v1/requests/decide", bookingHandler.Decide)
	mux.HandleFunc("/api/v1/requests/cancel", bookingHandler.CancelRequest)
	mux.HandleFunc("/api/v1/notifications", notificationHandler.List)
	mux.HandleFunc("/api/v1/admin/audit", auditHandler.List)

	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-User-Id,X-User-Role")),
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "roombook")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// requestsMux splits /api/v1/requests by method: POST creates, GET lists.
func requestsMux(h *handlers.BookingHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateRequest(w, r)
		case http.MethodGet:
			h.ListRequests(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
