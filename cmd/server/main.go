package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/engine"
	"github.com/openfolio/ledger-engine/internal/ledger"
	"github.com/openfolio/ledger-engine/internal/metrics"
	"github.com/openfolio/ledger-engine/internal/quote"
	"github.com/openfolio/ledger-engine/internal/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	var cleanup []func()

	// Redis is shared by the store cache and the quote cache when configured.
	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Initialize store ---
	var st ledger.Store

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = ledger.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		if rdb != nil {
			st = ledger.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis store cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = ledger.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Quote provider ---
	var quotes quote.Provider

	if apiURL := os.Getenv("QUOTE_API_URL"); apiURL != "" {
		apiKey := os.Getenv("QUOTE_API_KEY")
		if apiKey == "" {
			slog.Error("QUOTE_API_KEY not set")
			os.Exit(1)
		}
		quotes = quote.NewHTTPProvider(apiURL, apiKey, 5*time.Second)
		slog.Info("quote provider configured", "url", apiURL)

		if rdb != nil {
			quotes = quote.NewCachedProvider(quotes, rdb, 10*time.Second)
			slog.Info("Redis quote cache enabled")
		}
	} else {
		slog.Warn("QUOTE_API_URL not set, using static quote provider (development only)")
		quotes = quote.NewStaticProvider(map[string]decimal.Decimal{
			"AAPL": decimal.NewFromFloat(187.44),
			"MSFT": decimal.NewFromFloat(412.12),
			"NFLX": decimal.NewFromFloat(623.50),
		})
	}

	// --- WebSocket hub ---
	hub := web.NewFeedHub()
	go hub.Run()

	// --- Trade engine & web service ---
	eng := engine.New(st, quotes)
	svc := web.NewService(st, quotes, eng, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", hub.HandleWS)

		// Accounts.
		r.Post("/accounts", svc.CreateAccount)
		r.Get("/accounts/{accountID}", svc.GetAccount)

		// Trade execution.
		r.Post("/accounts/{accountID}/buy", svc.Buy)
		r.Post("/accounts/{accountID}/sell", svc.Sell)

		// Read-side queries.
		r.Get("/accounts/{accountID}/history", svc.GetHistory)
		r.Get("/accounts/{accountID}/portfolio", svc.GetPortfolio)
		r.Get("/quote/{symbol}", svc.GetQuote)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ledger-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ledger-engine stopped")
}
