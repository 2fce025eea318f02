package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

func bucketNotFound(name string) error {
	return fmt.Errorf("bucket %s: %w", name, domain.ErrNotFound)
}

func (s *Store) CreateBucket(ctx context.Context, b *bucket.Bucket) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, owner, region, acl, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		b.Name, b.Owner, b.Region, string(b.ACL), unixNano(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert bucket: %w", err)
	}
	return affected(res, fmt.Errorf("bucket %s: %w", b.Name, domain.ErrConflict))
}

func (s *Store) GetBucket(ctx context.Context, name string) (*bucket.Bucket, error) {
	return getBucket(ctx, s.db, name)
}

func getBucket(ctx context.Context, q queryer, name string) (*bucket.Bucket, error) {
	var (
		b       bucket.Bucket
		acl     string
		created int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT name, owner, region, acl, created_at FROM buckets WHERE name = ?`, name,
	).Scan(&b.Name, &b.Owner, &b.Region, &acl, &created)
	if noRows(err) {
		return nil, bucketNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w", err)
	}
	b.ACL = bucket.CannedACL(acl)
	b.CreatedAt = fromUnixNano(created)
	return &b, nil
}

func (s *Store) ListBuckets(ctx context.Context, owner string) ([]bucket.Bucket, error) {
	query := `SELECT name, owner, region, acl, created_at FROM buckets`
	var args []any
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []bucket.Bucket
	for rows.Next() {
		var (
			b       bucket.Bucket
			acl     string
			created int64
		)
		if err := rows.Scan(&b.Name, &b.Owner, &b.Region, &acl, &created); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.ACL = bucket.CannedACL(acl)
		b.CreatedAt = fromUnixNano(created)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var objects, uploads int
		if err := tx.QueryRowContext(ctx,
			`SELECT
				(SELECT COUNT(*) FROM objects WHERE bucket = ?),
				(SELECT COUNT(*) FROM multipart_uploads WHERE bucket = ?)`,
			name, name,
		).Scan(&objects, &uploads); err != nil {
			return fmt.Errorf("count bucket contents: %w", err)
		}
		if objects > 0 || uploads > 0 {
			return fmt.Errorf("bucket %s holds %d objects and %d uploads: %w",
				name, objects, uploads, domain.ErrConflict)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete bucket: %w", err)
		}
		return affected(res, bucketNotFound(name))
	})
}

func (s *Store) UpdateBucketACL(ctx context.Context, name string, acl bucket.CannedACL) error {
	res, err := s.db.ExecContext(ctx, `UPDATE buckets SET acl = ? WHERE name = ?`, string(acl), name)
	if err != nil {
		return fmt.Errorf("update bucket acl: %w", err)
	}
	return affected(res, bucketNotFound(name))
}

func (s *Store) GetBucketTags(ctx context.Context, name string) (tag.Set, error) {
	if _, err := getBucket(ctx, s.db, name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM bucket_tags WHERE bucket = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("get bucket tags: %w", err)
	}
	return scanTags(rows)
}

func (s *Store) PutBucketTags(ctx context.Context, name string, tags tag.Set) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getBucket(ctx, tx, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bucket_tags WHERE bucket = ?`, name); err != nil {
			return fmt.Errorf("clear bucket tags: %w", err)
		}
		for k, v := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bucket_tags (bucket, key, value) VALUES (?, ?, ?)`, name, k, v,
			); err != nil {
				return fmt.Errorf("insert bucket tag: %w", err)
			}
		}
		return nil
	})
}

// scanTags drains key/value rows into a Set and closes rows.
func scanTags(rows *sql.Rows) (tag.Set, error) {
	defer rows.Close()

	set := tag.Set{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		set[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return set, nil
}
