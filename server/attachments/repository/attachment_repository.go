package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attach_server/server/attachments/domain"
)

var ErrNotFound = errors.New("not found")

// AttachmentRepository persists attachment rows. Table names come from the
// model registry, which only produces validated lowercase identifiers, so
// interpolating them into statements is safe.
type AttachmentRepository struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepository(pool *pgxpool.Pool) *AttachmentRepository {
	return &AttachmentRepository{pool: pool}
}

func (r *AttachmentRepository) Create(ctx context.Context, table string, att domain.Attachment) (domain.Attachment, error) {
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s(owner_id, object_key, filename, content_type, size_bytes, thumbnail_key, creator_id)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, table), att.OwnerID, att.ObjectKey, att.Filename, att.ContentType, att.SizeBytes, att.ThumbnailKey, att.CreatorID).Scan(&att.ID, &att.CreatedAt)
	return att, err
}

func (r *AttachmentRepository) Get(ctx context.Context, table, ownerID, id string) (domain.Attachment, error) {
	var att domain.Attachment
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, owner_id, object_key, filename, content_type, size_bytes, thumbnail_key, creator_id, created_at
		FROM %s
		WHERE owner_id=$1 AND id=$2
	`, table), ownerID, id).Scan(&att.ID, &att.OwnerID, &att.ObjectKey, &att.Filename, &att.ContentType, &att.SizeBytes, &att.ThumbnailKey, &att.CreatorID, &att.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attachment{}, ErrNotFound
	}
	return att, err
}

// ReplaceFile swaps the stored file reference on an existing row. Creator and
// created_at are deliberately untouched.
func (r *AttachmentRepository) ReplaceFile(ctx context.Context, table, id, objectKey, filename, contentType string, sizeBytes int64, thumbnailKey string) (domain.Attachment, error) {
	var att domain.Attachment
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s
		SET object_key=$2, filename=$3, content_type=$4, size_bytes=$5, thumbnail_key=$6
		WHERE id=$1
		RETURNING id, owner_id, object_key, filename, content_type, size_bytes, thumbnail_key, creator_id, created_at
	`, table), id, objectKey, filename, contentType, sizeBytes, thumbnailKey).Scan(&att.ID, &att.OwnerID, &att.ObjectKey, &att.Filename, &att.ContentType, &att.SizeBytes, &att.ThumbnailKey, &att.CreatorID, &att.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attachment{}, ErrNotFound
	}
	return att, err
}

func (r *AttachmentRepository) Delete(ctx context.Context, table, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE owner_id=$1 AND id=$2
	`, table), ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AttachmentRepository) ListByOwner(ctx context.Context, table, ownerID string) ([]domain.Attachment, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, owner_id, object_key, filename, content_type, size_bytes, thumbnail_key, creator_id, created_at
		FROM %s
		WHERE owner_id=$1
		ORDER BY created_at DESC, id DESC
	`, table), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Attachment, 0)
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(&att.ID, &att.OwnerID, &att.ObjectKey, &att.Filename, &att.ContentType, &att.SizeBytes, &att.ThumbnailKey, &att.CreatorID, &att.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, att)
	}
	return items, rows.Err()
}

func (r *AttachmentRepository) CountByOwner(ctx context.Context, table, ownerID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*) FROM %s WHERE owner_id=$1
	`, table), ownerID).Scan(&count)
	return count, err
}

func (r *AttachmentRepository) OwnerExists(ctx context.Context, ownerTable, ownerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1)
	`, ownerTable), ownerID).Scan(&exists)
	return exists, err
}
