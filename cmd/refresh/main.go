// Refresh stale holding prices in the database from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dense-analysis/networth/internal/database"
	"github.com/dense-analysis/networth/internal/env"
	"github.com/dense-analysis/networth/internal/price"
	"github.com/dense-analysis/networth/internal/refresh"
	"github.com/dense-analysis/networth/internal/store"
)

func main() {
	env.LoadEnvironmentVariables()

	conn, err := database.Connect()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %s\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	remote := store.New(conn)
	holdings, err := remote.ListHoldings()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading holdings: %s\n", err)
		os.Exit(1)
	}

	if len(holdings) == 0 {
		fmt.Println("No holdings to refresh")

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	updater := refresh.NewUpdater(price.NewResolver())
	updated, refreshed := updater.RefreshAll(ctx, holdings)

	if !refreshed {
		fmt.Println("All prices are still fresh")

		return
	}

	if err := remote.SaveHoldings(updated); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving holdings: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("Refreshed prices for %d holdings\n", len(updated))
}
