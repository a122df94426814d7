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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/courselane/course_platform/internal/config"
	"github.com/courselane/course_platform/internal/events"
	"github.com/courselane/course_platform/internal/handlers"
	"github.com/courselane/course_platform/internal/ledger"
	"github.com/courselane/course_platform/internal/logging"
	"github.com/courselane/course_platform/internal/mail"
	loggingmw "github.com/courselane/course_platform/internal/middleware/logging"
	"github.com/courselane/course_platform/internal/payments"
	"github.com/courselane/course_platform/internal/search"
	"github.com/courselane/course_platform/internal/token"
	httpserver "github.com/courselane/course_platform/internal/transport/http"
	"github.com/courselane/course_platform/internal/validation"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	config.MustNonEmpty(configuration.DATABASE, "DATABASE")
	config.MustNonEmpty(configuration.JWT_SECRET, "JWT_SECRET")
	config.MustNonEmpty(configuration.STRIPE_SECRET_KEY, "STRIPE_SECRET_KEY")
	config.MustNonEmpty(configuration.STRIPE_WEBHOOK_SECRET, "STRIPE_WEBHOOK_SECRET")

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	tokens := &token.Service{
		Secret: []byte(configuration.JWT_SECRET),
		TTL:    configuration.JWT_EXPIRES_IN,
	}

	var producer *events.Producer
	if configuration.KAFKA_ADDRESS != "" {
		producer = events.NewProducer(configuration.KAFKA_ADDRESS)
	}

	var indexer *search.Indexer
	var searchHandler *handlers.SearchHandler
	if configuration.ES_URL != "" {
		esClient, err := search.NewClient(configuration)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		indexer = &search.Indexer{ES: esClient, Index: search.CourseIndex}
		searchHandler = &handlers.SearchHandler{ES: esClient, Index: search.CourseIndex}
	} else {
		searchHandler = &handlers.SearchHandler{}
	}

	paymentClient := payments.New(
		configuration.STRIPE_SECRET_KEY,
		configuration.PAYMENT_SUCCESS_URL,
		configuration.PAYMENT_CANCEL_URL,
		configuration.PAYMENT_CURRENCY,
	)

	mailer := &mail.Mailer{
		Host:     configuration.SMTP_HOST,
		Port:     configuration.SMTP_PORT,
		Username: configuration.SMTP_USER,
		Password: configuration.SMTP_PASS,
		From:     configuration.SMTP_FROM,
	}

	purchaseLedger := &ledger.Ledger{DB: db}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = httpserver.ErrorHandler(logger)
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:     db,
		Tokens: tokens,
		AuthHandler: &handlers.AuthHandler{
			DB:              db,
			Tokens:          tokens,
			Mailer:          mailer,
			Producer:        producer,
			ResetURL:        configuration.PASSWORD_RESET_URL,
			CookieExpiresIn: configuration.JWT_COOKIE_EXPIRES_IN,
		},
		UserHandler: &handlers.UserHandler{DB: db, Ledger: purchaseLedger},
		CourseHandler: &handlers.CourseHandler{
			DB:       db,
			Ledger:   purchaseLedger,
			Producer: producer,
			Search:   indexer,
		},
		PurchaseHandler: &handlers.PurchaseHandler{
			DB:            db,
			Ledger:        purchaseLedger,
			Payments:      paymentClient,
			Producer:      producer,
			WebhookSecret: configuration.STRIPE_WEBHOOK_SECRET,
		},
		SearchHandler: searchHandler,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("server started", "port", configuration.PORT)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
