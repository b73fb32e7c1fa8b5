// Import legacy Postgres portfolio tables into ClickHouse.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/database"
	"github.com/dense-analysis/networth/internal/env"
	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/store"
)

type importConfig struct {
	pgHost     string
	pgPort     string
	pgUser     string
	pgPassword string
	pgDatabase string
}

func buildConfig() importConfig {
	return importConfig{
		pgHost:     envOrDefault("PG_HOST", os.Getenv("DB_HOST")),
		pgPort:     envOrDefault("PG_PORT", os.Getenv("DB_PORT")),
		pgUser:     envOrDefault("PG_USERNAME", os.Getenv("DB_USERNAME")),
		pgPassword: envOrDefault("PG_PASSWORD", os.Getenv("DB_PASSWORD")),
		pgDatabase: envOrDefault("PG_DATABASE", os.Getenv("DB_NAME")),
	}
}

func main() {
	env.LoadEnvironmentVariables()

	config := buildConfig()

	pgConn, err := pgx.Connect(
		context.Background(),
		fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			config.pgUser,
			config.pgPassword,
			config.pgHost,
			config.pgPort,
			config.pgDatabase,
		),
	)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %s\n", err)
		os.Exit(1)
	}

	defer pgConn.Close(context.Background())

	chConn, err := database.Connect()

	if err != nil {
		fmt.Fprintf(os.Stderr, "ClickHouse connection error: %s\n", err)
		os.Exit(1)
	}
	defer chConn.Close()

	remote := store.New(chConn)

	holdingCount, err := importHoldings(pgConn, remote)

	if err != nil {
		exitWithError("Import holdings", err)
	}

	snapshotCount, err := importHistory(pgConn, remote)

	if err != nil {
		exitWithError("Import history", err)
	}

	fmt.Printf("Imported %d holdings and %d snapshots\n", holdingCount, snapshotCount)
}

func importHoldings(conn *pgx.Conn, remote *store.Store) (int, error) {
	rows, err := conn.Query(
		context.Background(),
		`
			select
				symbol,
				name,
				asset_type,
				quantity::text,
				unit_price::text,
				currency,
				coalesce(coin_id, ''),
				hidden,
				created
			from portfolio_asset
			order by created
		`,
	)

	if err != nil {
		return 0, err
	}

	defer rows.Close()

	var holdings []model.Holding

	for rows.Next() {
		var symbol string
		var name string
		var assetType string
		var quantityText string
		var unitPriceText string
		var currencyName string
		var coinID string
		var hidden bool
		var created time.Time

		if err := rows.Scan(
			&symbol,
			&name,
			&assetType,
			&quantityText,
			&unitPriceText,
			&currencyName,
			&coinID,
			&hidden,
			&created,
		); err != nil {
			return 0, err
		}

		class, err := model.ParseAssetClass(assetType)

		if err != nil {
			return 0, fmt.Errorf("asset %s: %w", symbol, err)
		}

		entryCurrency, err := model.ParseCurrency(currencyName)

		if err != nil {
			return 0, fmt.Errorf("asset %s: %w", symbol, err)
		}

		quantity, err := decimal.NewFromString(quantityText)

		if err != nil {
			return 0, fmt.Errorf("asset %s: %w", symbol, err)
		}

		unitPrice, err := decimal.NewFromString(unitPriceText)

		if err != nil {
			return 0, fmt.Errorf("asset %s: %w", symbol, err)
		}

		holdings = append(holdings, model.Holding{
			ID:            uuid.New(),
			Symbol:        symbol,
			DisplayName:   name,
			Class:         class,
			Quantity:      quantity,
			UnitPrice:     unitPrice,
			EntryCurrency: entryCurrency,
			ResolvedID:    coinID,
			Hidden:        hidden,
			CreatedAt:     created,
		})
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(holdings) == 0 {
		return 0, nil
	}

	if err := remote.SaveHoldings(holdings); err != nil {
		return 0, err
	}

	return len(holdings), nil
}

func importHistory(conn *pgx.Conn, remote *store.Store) (int, error) {
	rows, err := conn.Query(
		context.Background(),
		"select date, total_value::text from portfolio_history order by date",
	)

	if err != nil {
		return 0, err
	}

	defer rows.Close()

	var snapshots []model.Snapshot

	for rows.Next() {
		var date time.Time
		var totalValueText string

		if err := rows.Scan(&date, &totalValueText); err != nil {
			return 0, err
		}

		totalValue, err := decimal.NewFromString(totalValueText)

		if err != nil {
			return 0, fmt.Errorf("snapshot %s: %w", date.Format(model.DateFormat), err)
		}

		snapshots = append(snapshots, model.Snapshot{
			Date:       date.Format(model.DateFormat),
			TotalValue: totalValue,
		})
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(snapshots) == 0 {
		return 0, nil
	}

	if err := remote.UpsertSnapshots(snapshots); err != nil {
		return 0, err
	}

	return len(snapshots), nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}

	return fallback
}

func exitWithError(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s error: %s\n", action, err)
	os.Exit(1)
}
