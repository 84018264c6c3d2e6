package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heylo/heylo-auth/internal/domain"
)

type OTPRepository interface {
	// Replace stores a fresh code for phone, superseding any prior code
	// for the same number in a single statement.
	Replace(ctx context.Context, phone, codeHash string, expiresAt time.Time) error
	FindByPhone(ctx context.Context, phone string) (*domain.OTPCode, error)
	// Consume flips verified to true exactly once; returns false when the
	// record was already consumed or has expired.
	Consume(ctx context.Context, id int64) (bool, error)
	IncrementAttempts(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

const otpCols = `id, phone, code_hash, expires_at, verified, attempts, created_at`

func (r *otpRepository) Replace(ctx context.Context, phone, codeHash string, expiresAt time.Time) error {
	// The unique constraint on phone plus the upsert keep the
	// single-live-code invariant under concurrent sends.
	const q = `
		INSERT INTO otp_codes (phone, code_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE SET
			code_hash  = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			verified   = false,
			attempts   = 0,
			created_at = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, phone, codeHash, expiresAt)
	return err
}

func (r *otpRepository) FindByPhone(ctx context.Context, phone string) (*domain.OTPCode, error) {
	const q = `SELECT ` + otpCols + ` FROM otp_codes WHERE phone = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var o domain.OTPCode
	err := r.pool.QueryRow(ctx, q, phone).Scan(
		&o.ID, &o.Phone, &o.CodeHash, &o.ExpiresAt, &o.Verified, &o.Attempts, &o.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *otpRepository) Consume(ctx context.Context, id int64) (bool, error) {
	const q = `
		UPDATE otp_codes
		SET verified = true
		WHERE id = $1
		  AND verified = false
		  AND expires_at > now()
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var consumed int64
	err := r.pool.QueryRow(ctx, q, id).Scan(&consumed)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id int64) error {
	const q = `UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *otpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM otp_codes WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
