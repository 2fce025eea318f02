package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

const objectColumns = `bucket, key, oid, size, etag, content_type, acl, user_meta, created_at, modified_at`

func objectNotFound(bucket, key string) error {
	return fmt.Errorf("object %s/%s: %w", bucket, key, domain.ErrNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObject(row scanner) (*object.Object, error) {
	var (
		o                 object.Object
		meta              string
		created, modified int64
	)
	if err := row.Scan(&o.Bucket, &o.Key, &o.OID, &o.Size, &o.ETag, &o.ContentType, &o.ACL,
		&meta, &created, &modified); err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &o.UserMeta); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	o.CreatedAt = fromUnixNano(created)
	o.ModifiedAt = fromUnixNano(modified)
	return &o, nil
}

// getObject loads the object and its tags.
func getObject(ctx context.Context, q queryer, bucket, key string) (*object.Object, error) {
	o, err := scanObject(q.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE bucket = ? AND key = ?`, bucket, key))
	if noRows(err) {
		return nil, objectNotFound(bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM object_tags WHERE bucket = ? AND object_key = ?`, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get object tags: %w", err)
	}
	tags, err := scanTags(rows)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		o.Tags = tags
	}
	return o, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (*object.Object, error) {
	return getObject(ctx, s.db, bucket, key)
}

func (s *Store) PutObject(ctx context.Context, o *object.Object) (*object.Object, error) {
	meta := "{}"
	if len(o.UserMeta) > 0 {
		raw, err := json.Marshal(o.UserMeta)
		if err != nil {
			return nil, fmt.Errorf("encode user metadata: %w", err)
		}
		meta = string(raw)
	}

	var prev *object.Object
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getBucket(ctx, tx, o.Bucket); err != nil {
			return err
		}

		old, err := getObject(ctx, tx, o.Bucket, o.Key)
		switch {
		case err == nil:
			prev = old
		case !isNotFound(err):
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objects (`+objectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (bucket, key) DO UPDATE SET
				oid = excluded.oid,
				size = excluded.size,
				etag = excluded.etag,
				content_type = excluded.content_type,
				acl = excluded.acl,
				user_meta = excluded.user_meta,
				modified_at = excluded.modified_at`,
			o.Bucket, o.Key, o.OID, o.Size, o.ETag, o.ContentType, o.ACL, meta,
			unixNano(o.CreatedAt), unixNano(o.ModifiedAt),
		); err != nil {
			return fmt.Errorf("upsert object: %w", err)
		}

		return replaceObjectTags(ctx, tx, o.Bucket, o.Key, o.Tags)
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) (*object.Object, error) {
	var prev *object.Object
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		old, err := getObject(ctx, tx, bucket, key)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key,
		); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		prev = old
		return nil
	})
	return prev, err
}

// ListObjects pages through keys in byte order. With a delimiter, keys
// sharing a prefix up to the next delimiter collapse into one common prefix,
// and each common prefix counts once against MaxKeys.
func (s *Store) ListObjects(ctx context.Context, bucket string, q object.ListQuery) (*object.Listing, error) {
	if _, err := getBucket(ctx, s.db, bucket); err != nil {
		return nil, err
	}

	maxKeys := q.MaxKeys
	if maxKeys <= 0 {
		maxKeys = object.DefaultMaxKeys
	}

	query := `SELECT ` + objectColumns + ` FROM objects
		WHERE bucket = ? AND key > ? AND substr(key, 1, ?) = ?
		ORDER BY key`
	args := []any{bucket, q.After, len([]rune(q.Prefix)), q.Prefix}
	if q.Delimiter == "" {
		// Without grouping one extra row is enough to detect truncation.
		query += ` LIMIT ?`
		args = append(args, maxKeys+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	out := &object.Listing{}
	count := 0
	lastPrefix := ""
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}

		if q.Delimiter != "" {
			rest := o.Key[len(q.Prefix):]
			if i := strings.Index(rest, q.Delimiter); i >= 0 {
				cp := q.Prefix + rest[:i+len(q.Delimiter)]
				if cp == lastPrefix || cp <= q.After {
					continue
				}
				if count == maxKeys {
					out.IsTruncated = true
					break
				}
				out.CommonPrefixes = append(out.CommonPrefixes, cp)
				out.NextMarker = cp
				lastPrefix = cp
				count++
				continue
			}
		}

		if count == maxKeys {
			out.IsTruncated = true
			break
		}
		out.Objects = append(out.Objects, *o)
		out.NextMarker = o.Key
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}

	if !out.IsTruncated {
		out.NextMarker = ""
	}
	return out, nil
}

func (s *Store) PutObjectTags(ctx context.Context, bucket, key string, tags tag.Set) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM objects WHERE bucket = ? AND key = ?`, bucket, key,
		).Scan(&n); err != nil {
			return fmt.Errorf("check object: %w", err)
		}
		if n == 0 {
			return objectNotFound(bucket, key)
		}
		return replaceObjectTags(ctx, tx, bucket, key, tags)
	})
}

func (s *Store) UpdateObjectACL(ctx context.Context, bucket, key, acl string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET acl = ? WHERE bucket = ? AND key = ?`, acl, bucket, key)
	if err != nil {
		return fmt.Errorf("update object acl: %w", err)
	}
	return affected(res, objectNotFound(bucket, key))
}

func replaceObjectTags(ctx context.Context, tx *sql.Tx, bucket, key string, tags map[string]string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM object_tags WHERE bucket = ? AND object_key = ?`, bucket, key,
	); err != nil {
		return fmt.Errorf("clear object tags: %w", err)
	}
	for k, v := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO object_tags (bucket, object_key, key, value) VALUES (?, ?, ?, ?)`,
			bucket, key, k, v,
		); err != nil {
			return fmt.Errorf("insert object tag: %w", err)
		}
	}
	return nil
}
