package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
)

func uploadNotFound(id string) error {
	return fmt.Errorf("upload %s: %w", id, domain.ErrNotFound)
}

func (s *Store) CreateUpload(ctx context.Context, u *multipart.Upload) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getBucket(ctx, tx, u.Bucket); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO multipart_uploads (id, bucket, key, owner, content_type, initiated)
			VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, u.Bucket, u.Key, u.Owner, u.ContentType, unixNano(u.Initiated),
		); err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}
		return nil
	})
}

func (s *Store) GetUpload(ctx context.Context, bucket, key, uploadID string) (*multipart.Upload, error) {
	var (
		u         multipart.Upload
		initiated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, bucket, key, owner, content_type, initiated
		FROM multipart_uploads WHERE id = ? AND bucket = ? AND key = ?`,
		uploadID, bucket, key,
	).Scan(&u.ID, &u.Bucket, &u.Key, &u.Owner, &u.ContentType, &initiated)
	if noRows(err) {
		return nil, uploadNotFound(uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	u.Initiated = fromUnixNano(initiated)
	return &u, nil
}

// ListUploads pages through a bucket's in-progress uploads in key order,
// grouping keys by q.Delimiter the way object listings do.
func (s *Store) ListUploads(ctx context.Context, bucket string, q multipart.ListQuery) (*multipart.Listing, error) {
	if _, err := getBucket(ctx, s.db, bucket); err != nil {
		return nil, err
	}

	maxUploads := q.MaxUploads
	if maxUploads <= 0 {
		maxUploads = multipart.DefaultMaxUploads
	}

	// Without an upload ID marker the marker key is skipped entirely.
	idMarker := q.UploadIDMarker
	if q.KeyMarker == "" {
		idMarker = ""
	}
	query := `SELECT id, bucket, key, owner, content_type, initiated
		FROM multipart_uploads
		WHERE bucket = ? AND substr(key, 1, ?) = ?
			AND (key > ? OR (key = ? AND ? != '' AND id > ?))
		ORDER BY key, id`
	args := []any{bucket, len([]rune(q.Prefix)), q.Prefix, q.KeyMarker, q.KeyMarker, idMarker, idMarker}
	if q.Delimiter == "" {
		query += ` LIMIT ?`
		args = append(args, maxUploads+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := &multipart.Listing{}
	count := 0
	lastPrefix := ""
	for rows.Next() {
		var (
			u         multipart.Upload
			initiated int64
		)
		if err := rows.Scan(&u.ID, &u.Bucket, &u.Key, &u.Owner, &u.ContentType, &initiated); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.Initiated = fromUnixNano(initiated)

		if q.Delimiter != "" {
			rest := u.Key[len(q.Prefix):]
			if i := strings.Index(rest, q.Delimiter); i >= 0 {
				cp := q.Prefix + rest[:i+len(q.Delimiter)]
				if cp == lastPrefix || cp <= q.KeyMarker {
					continue
				}
				if count == maxUploads {
					out.IsTruncated = true
					break
				}
				out.CommonPrefixes = append(out.CommonPrefixes, cp)
				out.NextKeyMarker, out.NextUploadIDMarker = cp, ""
				lastPrefix = cp
				count++
				continue
			}
		}

		if count == maxUploads {
			out.IsTruncated = true
			break
		}
		out.Uploads = append(out.Uploads, u)
		out.NextKeyMarker, out.NextUploadIDMarker = u.Key, u.ID
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}

	if !out.IsTruncated {
		out.NextKeyMarker, out.NextUploadIDMarker = "", ""
	}
	return out, nil
}

func getPart(ctx context.Context, q queryer, uploadID string, number int) (*multipart.Part, error) {
	var (
		p        multipart.Part
		modified int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT upload_id, number, oid, size, etag, modified_at
		FROM multipart_parts WHERE upload_id = ? AND number = ?`,
		uploadID, number,
	).Scan(&p.UploadID, &p.Number, &p.OID, &p.Size, &p.ETag, &modified)
	if err != nil {
		return nil, err
	}
	p.ModifiedAt = fromUnixNano(modified)
	return &p, nil
}

func (s *Store) PutPart(ctx context.Context, p *multipart.Part) (*multipart.Part, error) {
	var prev *multipart.Part
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		old, err := getPart(ctx, tx, p.UploadID, p.Number)
		switch {
		case err == nil:
			prev = old
		case !noRows(err):
			return fmt.Errorf("get part: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO multipart_parts (upload_id, number, oid, size, etag, modified_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (upload_id, number) DO UPDATE SET
				oid = excluded.oid,
				size = excluded.size,
				etag = excluded.etag,
				modified_at = excluded.modified_at`,
			p.UploadID, p.Number, p.OID, p.Size, p.ETag, unixNano(p.ModifiedAt),
		); err != nil {
			// The foreign key rejects parts of an unknown upload.
			return fmt.Errorf("upsert part: %w", err)
		}
		return nil
	})
	return prev, err
}

func (s *Store) ListParts(ctx context.Context, uploadID string) ([]multipart.Part, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_id, number, oid, size, etag, modified_at
		FROM multipart_parts WHERE upload_id = ? ORDER BY number`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var out []multipart.Part
	for rows.Next() {
		var (
			p        multipart.Part
			modified int64
		)
		if err := rows.Scan(&p.UploadID, &p.Number, &p.OID, &p.Size, &p.ETag, &modified); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		p.ModifiedAt = fromUnixNano(modified)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteUpload(ctx context.Context, uploadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return affected(res, uploadNotFound(uploadID))
}
