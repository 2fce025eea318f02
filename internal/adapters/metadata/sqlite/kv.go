package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/kv"
)

func kvNotFound(index, key string) error {
	return fmt.Errorf("kv %s/%s: %w", index, key, domain.ErrNotFound)
}

func getValue(ctx context.Context, q queryer, index, key string) (*kv.Entry, error) {
	var (
		e        kv.Entry
		modified int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT idx, key, value, modified_at FROM kv_entries WHERE idx = ? AND key = ?`,
		index, key,
	).Scan(&e.Index, &e.Key, &e.Value, &modified)
	if noRows(err) {
		return nil, kvNotFound(index, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get value: %w", err)
	}
	e.ModifiedAt = fromUnixNano(modified)
	return &e, nil
}

func (s *Store) GetValue(ctx context.Context, index, key string) (*kv.Entry, error) {
	return getValue(ctx, s.db, index, key)
}

func (s *Store) PutValue(ctx context.Context, e *kv.Entry) (*kv.Entry, error) {
	var prev *kv.Entry
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		old, err := getValue(ctx, tx, e.Index, e.Key)
		switch {
		case err == nil:
			prev = old
		case !isNotFound(err):
			return err
		}

		value := e.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_entries (idx, key, value, modified_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (idx, key) DO UPDATE SET
				value = excluded.value,
				modified_at = excluded.modified_at`,
			e.Index, e.Key, value, unixNano(e.ModifiedAt),
		); err != nil {
			return fmt.Errorf("upsert value: %w", err)
		}
		return nil
	})
	return prev, err
}

func (s *Store) DeleteValue(ctx context.Context, index, key string) (*kv.Entry, error) {
	var prev *kv.Entry
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		old, err := getValue(ctx, tx, index, key)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE idx = ? AND key = ?`, index, key,
		); err != nil {
			return fmt.Errorf("delete value: %w", err)
		}
		prev = old
		return nil
	})
	return prev, err
}

// ListKeys returns entries without their values.
func (s *Store) ListKeys(ctx context.Context, index, prefix, after string, limit int) ([]kv.Entry, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, modified_at FROM kv_entries
		WHERE idx = ? AND key > ? AND substr(key, 1, ?) = ?
		ORDER BY key LIMIT ?`,
		index, after, len([]rune(prefix)), prefix, limit+1,
	)
	if err != nil {
		return nil, false, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		var (
			e        = kv.Entry{Index: index}
			modified int64
		)
		if err := rows.Scan(&e.Key, &modified); err != nil {
			return nil, false, fmt.Errorf("scan key: %w", err)
		}
		e.ModifiedAt = fromUnixNano(modified)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate keys: %w", err)
	}

	if len(out) > limit {
		return out[:limit], true, nil
	}
	return out, false, nil
}
