package eventsub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// PostgresStore persists the snapshot in the eventsub_subscriptions table.
// Save replaces all rows inside one transaction so concurrent readers never
// observe a partial snapshot.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (ps *PostgresStore) Load(ctx context.Context) (map[string]Record, error) {
	rows, err := ps.DB.QueryContext(ctx,
		`SELECT key, subscription_id, event_type, condition, expires_at FROM eventsub_subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	subs := map[string]Record{}
	for rows.Next() {
		var key, condJSON string
		var rec Record
		if err := rows.Scan(&key, &rec.ID, &rec.Type, &condJSON, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(condJSON), &rec.Condition); err != nil {
			slog.Warn("subscription row has corrupt condition, skipping",
				slog.String("key", key), slog.Any("err", err))
			continue
		}
		subs[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (ps *PostgresStore) Save(ctx context.Context, subs map[string]Record) error {
	tx, err := ps.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is best effort

	if _, err := tx.ExecContext(ctx, `DELETE FROM eventsub_subscriptions`); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	for key, rec := range subs {
		cond := rec.Condition
		if cond == nil {
			cond = map[string]string{}
		}
		condJSON, err := json.Marshal(cond)
		if err != nil {
			return fmt.Errorf("encode condition for %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO eventsub_subscriptions(key, subscription_id, event_type, condition, expires_at, updated_at)
			 VALUES($1, $2, $3, $4, $5, NOW())`,
			key, rec.ID, rec.Type, string(condJSON), rec.ExpiresAt); err != nil {
			return fmt.Errorf("insert subscription %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
