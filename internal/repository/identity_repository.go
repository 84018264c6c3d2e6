package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heylo/heylo-auth/internal/domain"
)

type IdentityRepository interface {
	// Create inserts a new identity; a duplicate phone surfaces as
	// domain.ErrAccountExists so concurrent signups lose cleanly.
	Create(ctx context.Context, phone, displayName, fullName string) (*domain.Identity, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
}

type identityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityCols = `id, phone, display_name, full_name, COALESCE(email, ''), created_at, updated_at`

func (r *identityRepository) Create(ctx context.Context, phone, displayName, fullName string) (*domain.Identity, error) {
	const q = `
		INSERT INTO identities (phone, display_name, full_name)
		VALUES ($1, $2, $3)
		RETURNING ` + identityCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var i domain.Identity
	err := r.pool.QueryRow(ctx, q, phone, displayName, fullName).Scan(
		&i.ID, &i.Phone, &i.DisplayName, &i.FullName, &i.Email, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAccountExists
		}
		return nil, err
	}

	return &i, nil
}

func (r *identityRepository) FindByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE phone = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var i domain.Identity
	err := r.pool.QueryRow(ctx, q, phone).Scan(
		&i.ID, &i.Phone, &i.DisplayName, &i.FullName, &i.Email, &i.CreatedAt, &i.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *identityRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var i domain.Identity
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&i.ID, &i.Phone, &i.DisplayName, &i.FullName, &i.Email, &i.CreatedAt, &i.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}
