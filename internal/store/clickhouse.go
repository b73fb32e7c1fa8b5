// Package store persists holdings and history snapshots, remotely in
// ClickHouse and locally in a JSON cache file.
package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/database"
	"github.com/dense-analysis/networth/internal/model"
)

// Store reads and writes the remote tables.
//
// Both tables are append-only and reads take the latest row per key, so
// every write behaves as an idempotent upsert.
type Store struct {
	conn *database.Conn
}

// New wraps a database connection in a Store.
func New(conn *database.Conn) *Store {
	return &Store{conn: conn}
}

const holdingColumns = `
	id,
	symbol,
	display_name,
	class,
	quantity,
	unit_price,
	entry_currency,
	resolved_id,
	last_refreshed_at,
	hidden,
	deleted,
	created_at
`

type holdingRow struct {
	model.Holding
	Deleted bool
}

// DateTime64 columns cannot hold Go's zero time, so "never refreshed" is
// stored as the Unix epoch.
func toDBTime(point time.Time) time.Time {
	if point.IsZero() {
		return time.Unix(0, 0).UTC()
	}

	return point
}

func fromDBTime(point time.Time) time.Time {
	if point.Unix() == 0 {
		return time.Time{}
	}

	return point
}

func scanHoldingRow(row database.Row, holding *holdingRow) error {
	var class string
	var entryCurrency string
	var lastRefreshedAt time.Time
	var createdAt time.Time

	if err := row.Scan(
		&holding.ID,
		&holding.Symbol,
		&holding.DisplayName,
		&class,
		&holding.Quantity,
		&holding.UnitPrice,
		&entryCurrency,
		&holding.ResolvedID,
		&lastRefreshedAt,
		&holding.Hidden,
		&holding.Deleted,
		&createdAt,
	); err != nil {
		return err
	}

	holding.Class = model.AssetClass(class)
	holding.EntryCurrency = model.Currency(entryCurrency)
	holding.LastRefreshedAt = fromDBTime(lastRefreshedAt)
	holding.CreatedAt = fromDBTime(createdAt)

	return nil
}

// ListHoldings returns all live holdings, oldest first.
func (store *Store) ListHoldings() ([]model.Holding, error) {
	var rows []holdingRow

	if err := model.LoadList(
		store.conn,
		&rows,
		16,
		scanHoldingRow,
		`
		select `+holdingColumns+`
		from portfolio_holding
		order by updated_at desc
		limit 1 by id
		`,
	); err != nil {
		return nil, err
	}

	holdings := make([]model.Holding, 0, len(rows))

	for _, row := range rows {
		if !row.Deleted {
			holdings = append(holdings, row.Holding)
		}
	}

	sort.SliceStable(holdings, func(i int, j int) bool {
		return holdings[i].CreatedAt.Before(holdings[j].CreatedAt)
	})

	return holdings, nil
}

var holdingInsertQuery = `
insert into portfolio_holding (` + holdingColumns + `, updated_at)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now64(9))
`

func (store *Store) insertHolding(holding model.Holding, deleted bool) error {
	return store.conn.Exec(
		holdingInsertQuery,
		holding.ID,
		holding.Symbol,
		holding.DisplayName,
		string(holding.Class),
		holding.Quantity,
		holding.UnitPrice,
		string(holding.EntryCurrency),
		holding.ResolvedID,
		toDBTime(holding.LastRefreshedAt),
		holding.Hidden,
		deleted,
		toDBTime(holding.CreatedAt),
	)
}

// SaveHolding upserts one holding.
func (store *Store) SaveHolding(holding model.Holding) error {
	return store.insertHolding(holding, false)
}

// SaveHoldings upserts holdings in one batched insert.
func (store *Store) SaveHoldings(holdings []model.Holding) error {
	if len(holdings) == 0 {
		return nil
	}

	batch, err := store.conn.PrepareBatch(holdingInsertQuery)

	if err != nil {
		return err
	}

	for _, holding := range holdings {
		if err := batch.Append(
			holding.ID,
			holding.Symbol,
			holding.DisplayName,
			string(holding.Class),
			holding.Quantity,
			holding.UnitPrice,
			string(holding.EntryCurrency),
			holding.ResolvedID,
			toDBTime(holding.LastRefreshedAt),
			holding.Hidden,
			false,
			toDBTime(holding.CreatedAt),
		); err != nil {
			return err
		}
	}

	return batch.Send()
}

// DeleteHolding removes a holding permanently by writing a tombstone row.
func (store *Store) DeleteHolding(id uuid.UUID) error {
	return store.insertHolding(model.Holding{ID: id}, true)
}

func scanSnapshot(row database.Row, snapshot *model.Snapshot) error {
	var day time.Time
	var totalValue decimal.Decimal

	if err := row.Scan(&day, &totalValue); err != nil {
		return err
	}

	snapshot.Date = day.Format(model.DateFormat)
	snapshot.TotalValue = totalValue

	return nil
}

// ListSnapshots returns the full history ascending by date, with the latest
// write per date winning.
func (store *Store) ListSnapshots() ([]model.Snapshot, error) {
	var snapshots []model.Snapshot

	err := model.LoadList(
		store.conn,
		&snapshots,
		365,
		scanSnapshot,
		`
		select
			date,
			argMax(total_value, updated_at) as total_value
		from portfolio_history
		group by date
		order by date
		`,
	)

	return snapshots, err
}

var snapshotInsertQuery = `
insert into portfolio_history (date, total_value, updated_at)
values (?, ?, now64(9))
`

// UpsertSnapshot writes the snapshot for one date, replacing any prior value.
func (store *Store) UpsertSnapshot(snapshot model.Snapshot) error {
	day, err := time.Parse(model.DateFormat, snapshot.Date)

	if err != nil {
		return err
	}

	return store.conn.Exec(snapshotInsertQuery, day, snapshot.TotalValue)
}

// UpsertSnapshots writes snapshots in one batched insert.
func (store *Store) UpsertSnapshots(snapshots []model.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := store.conn.PrepareBatch(snapshotInsertQuery)

	if err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		day, err := time.Parse(model.DateFormat, snapshot.Date)

		if err != nil {
			return err
		}

		if err := batch.Append(day, snapshot.TotalValue); err != nil {
			return err
		}
	}

	return batch.Send()
}
