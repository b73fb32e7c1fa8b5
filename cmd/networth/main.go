package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dense-analysis/networth/internal/currency"
	"github.com/dense-analysis/networth/internal/database"
	"github.com/dense-analysis/networth/internal/demo"
	"github.com/dense-analysis/networth/internal/env"
	"github.com/dense-analysis/networth/internal/portfolio"
	"github.com/dense-analysis/networth/internal/price"
	"github.com/dense-analysis/networth/internal/route/dashboard"
	"github.com/dense-analysis/networth/internal/route/holding"
	"github.com/dense-analysis/networth/internal/route/priceproxy"
	"github.com/dense-analysis/networth/internal/route/trend"
	"github.com/dense-analysis/networth/internal/session"
	"github.com/dense-analysis/networth/internal/store"
)

func openRemoteStore(demoMode bool) portfolio.RemoteStore {
	if demoMode {
		return demo.NewStore()
	}

	conn, err := database.Connect()

	if err != nil {
		logrus.Fatalf("database connection error: %s", err)
	}

	return store.New(conn)
}

func main() {
	demoMode := flag.Bool("demo", false, "run with seeded in-memory data instead of ClickHouse")
	flag.Parse()

	env.LoadEnvironmentVariables()
	session.InitSessionStorage()

	local, err := store.OpenLocal(filepath.Join(env.Str("DATA_DIR", "data"), "networth.json"))

	if err != nil {
		logrus.Fatalf("failed to open local store: %s", err)
	}

	converter := currency.NewConverter()

	if display, ok := local.DisplayCurrency(); ok {
		if rate, fetchedAt, rateOK := local.CachedRate(); rateOK {
			converter.Restore(display, rate, fetchedAt)
		} else {
			converter.SetDisplayCurrency(display)
		}
	} else if rate, fetchedAt, ok := local.CachedRate(); ok {
		converter.SetRate(rate, fetchedAt)
	}

	resolver := price.NewResolver()
	aggregator := portfolio.NewStore(converter, resolver, openRemoteStore(*demoMode), local)
	aggregator.Load()

	rateClient := currency.NewRateClient()

	go aggregator.RefreshRate(context.Background(), rateClient)

	// Refresh prices shortly after startup, then keep the cache warm.
	time.AfterFunc(time.Second, func() {
		aggregator.RefreshPrices(context.Background())
	})

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			aggregator.RefreshPrices(context.Background())
			aggregator.RefreshRate(context.Background(), rateClient)
		}
	}()

	holdingHandler := &holding.Handler{Portfolio: aggregator}
	dashboardHandler := &dashboard.Handler{Portfolio: aggregator}
	trendHandler := &trend.Handler{Portfolio: aggregator, DemoMode: *demoMode}
	proxyHandler := &priceproxy.Handler{Resolver: resolver}

	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/api/holdings", holdingHandler.Collection()).Methods("GET", "POST")
	router.HandleFunc("/api/holdings/{id}", holdingHandler.Item()).Methods("PUT", "DELETE")
	router.HandleFunc("/api/holdings/{id}/hide", holdingHandler.Hide()).Methods("POST")
	router.HandleFunc("/api/portfolio", dashboardHandler.Summary()).Methods("GET")
	router.HandleFunc("/api/refresh", dashboardHandler.Refresh()).Methods("POST")
	router.HandleFunc("/api/currency", dashboardHandler.Currency()).Methods("GET", "PUT")
	router.HandleFunc("/api/history", trendHandler.History()).Methods("GET")
	router.HandleFunc("/api/history/migrate", trendHandler.Migrate()).Methods("POST")
	router.HandleFunc("/api/crypto-price", proxyHandler.Crypto()).Methods("GET")
	router.HandleFunc("/api/stock-price", proxyHandler.Stock()).Methods("GET")

	fileServer := http.FileServer(http.Dir("./static/"))
	router.PathPrefix("/").Handler(fileServer)

	server := http.Server{
		Addr:    ":" + env.Str("PORT", "8000"),
		Handler: router,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %s", err)
		}
	}()

	logrus.Info("Server started")
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shut down failed: %+v", err)
	}

	// Push any pending daily snapshot before the process exits.
	aggregator.Flush()

	logrus.Info("Server shut down successfully")
}
