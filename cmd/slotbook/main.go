package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/mjdelacruz/slotbook/internal/availability"
	"github.com/mjdelacruz/slotbook/internal/booking"
	"github.com/mjdelacruz/slotbook/internal/calendar"
	"github.com/mjdelacruz/slotbook/internal/consumer"
	"github.com/mjdelacruz/slotbook/internal/handlers"
	"github.com/mjdelacruz/slotbook/internal/inbox"
	"github.com/mjdelacruz/slotbook/internal/lock"
	"github.com/mjdelacruz/slotbook/internal/notify"
	"github.com/mjdelacruz/slotbook/internal/outbox"
	"github.com/mjdelacruz/slotbook/internal/reconcile"
	"github.com/mjdelacruz/slotbook/internal/reminders"
	"github.com/mjdelacruz/slotbook/internal/slotgrid"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/libs/config"
	"github.com/mjdelacruz/slotbook/libs/db"
	"github.com/mjdelacruz/slotbook/libs/httpx"
	"github.com/mjdelacruz/slotbook/libs/kafkax"
	otelx "github.com/mjdelacruz/slotbook/libs/otel"
	"github.com/mjdelacruz/slotbook/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "slotbook")
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

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	calendarID := config.String("GOOGLE_CALENDAR_ID", calendar.DefaultCalendarID)
	gateway, err := newCalendarGateway(ctx, calendarID, logger)
	if err != nil {
		logger.Error("calendar gateway init failed", "err", err)
		panic(err)
	}

	eventRepo := storage.NewEventRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	orphanRepo := storage.NewOrphanRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	reminderRepo := reminders.NewRepository(pool)

	grid := slotgrid.Default()
	resolver := availability.NewResolver(gateway, grid, calendarID, logger)
	locker := lock.NewSlotLocker(rdb, config.Duration("SLOT_LOCK_TTL", 30*time.Second))
	persister := booking.NewTxPersister(pool, bookingRepo, outboxRepo, reminderRepo)
	svc := booking.NewService(eventRepo, bookingRepo, resolver, gateway, locker, persister, orphanRepo, grid, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminders.NewWorker(pool, reminderRepo, outboxRepo, logger, reminders.WorkerConfig{
		Interval:  config.Duration("REMINDER_POLL_EVERY", 30*time.Second),
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 50),
	})
	go reminderWorker.Run(ctx)

	sweeper := reconcile.NewSweeper(pool, orphanRepo, outboxRepo, logger, reconcile.Config{
		Schedule:  config.String("ORPHAN_SWEEP_SCHEDULE", "@every 5m"),
		BatchSize: config.Int("ORPHAN_SWEEP_BATCH_SIZE", 100),
	})
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("orphan sweeper stopped", "err", err)
		}
	}()

	sender := notify.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@slotbook.local"),
	)
	dispatcher := notify.NewDispatcher(sender, config.String("SMTP_FROM", "no-reply@slotbook.local"), logger)

	inboxRepo := inbox.NewRepository(pool)
	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(brokers) == "" {
			logger.Warn("consumer disabled (no kafka brokers configured)", "topic", topic)
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "slotbook-notify"),
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}
	startConsumer(outbox.TopicBookingConfirmed, dispatcher.HandleConfirmation)
	startConsumer(outbox.TopicReminderDue, dispatcher.HandleReminder)

	eventHandler := handlers.NewEventHandler(eventRepo, svc, logger)
	bookingHandler := handlers.NewBookingHandler(svc, bookingRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: lock.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("GET /api/v1/events", eventHandler.List)
	mux.HandleFunc("GET /api/v1/events/{id}/slots", eventHandler.Slots)
	mux.HandleFunc("POST /api/v1/events/{id}/bookings", bookingHandler.Create)
	mux.HandleFunc("GET /api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookingHandler.Get)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", bookingHandler.Delete)

	// Redis-backed limiting when instances share state; the in-memory
	// limiter covers single-instance deployments.
	var rateLimit httpx.Middleware
	if config.String("RATE_LIMIT_BACKEND", "redis") == "memory" {
		rateLimit = httpx.NewRateLimiter(
			config.Int("RATE_LIMIT", 120),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
		).Middleware()
	} else {
		rateLimit = httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			"slotbook").Middleware(logger, true)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

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

// newCalendarGateway builds the Google Calendar client from an offline
// refresh token. The token must have been granted the calendar scope.
func newCalendarGateway(ctx context.Context, calendarID string, logger *slog.Logger) (calendar.Gateway, error) {
	clientID, err := config.RequiredString("GOOGLE_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	clientSecret, err := config.RequiredString("GOOGLE_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	refreshToken, err := config.RequiredString("GOOGLE_REFRESH_TOKEN")
	if err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendarapi.CalendarScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return calendar.NewGoogleGateway(ctx, ts, calendarID, logger)
}
