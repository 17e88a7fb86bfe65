package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attach_server/server/attachments/domain"
)

type principalRow struct {
	domain.Principal
	PasswordHash string
}

type PrincipalRepository struct {
	pool *pgxpool.Pool
}

func NewPrincipalRepository(pool *pgxpool.Pool) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

func (r *PrincipalRepository) Create(ctx context.Context, username, passwordHash string, perms []string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO principals(username, password_hash, perms)
		VALUES($1, $2, $3)
		RETURNING id
	`, username, passwordHash, perms).Scan(&id)
	return id, err
}

func (r *PrincipalRepository) GetByUsername(ctx context.Context, username string) (domain.Principal, string, error) {
	var row principalRow
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, perms, password_hash
		FROM principals
		WHERE username=$1
	`, username).Scan(&row.ID, &row.Username, &row.Perms, &row.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Principal{}, "", ErrNotFound
	}
	if err != nil {
		return domain.Principal{}, "", err
	}
	return row.Principal, row.PasswordHash, nil
}

func (r *PrincipalRepository) UpdatePerms(ctx context.Context, username string, perms []string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals SET perms=$2 WHERE username=$1
	`, username, perms)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
