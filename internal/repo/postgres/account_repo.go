package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/dutchville-accounts/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const emailUniqueConstraint = "users_email_key"

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrNotFound       = errors.New("account not found")
)

type AccountsRepo interface {
	Create(ctx context.Context, a domain.NewAccount) (int64, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	CountByEmail(ctx context.Context, email string) (int, error)
}

type AccountsRepoImpl struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewAccountsRepo(pool *pgxpool.Pool, queryTimeout time.Duration) *AccountsRepoImpl {
	if queryTimeout <= 0 {
		queryTimeout = 3 * time.Second
	}
	return &AccountsRepoImpl{pool: pool, timeout: queryTimeout}
}

// Create inserts an unverified account in one statement. A concurrent insert
// of the same email loses on the unique constraint and gets ErrDuplicateEmail.
func (r *AccountsRepoImpl) Create(ctx context.Context, a domain.NewAccount) (int64, error) {
	const q = `
INSERT INTO users (email, password_hash, fullname, discord, age, verification_code, is_verified)
VALUES ($1,$2,$3,$4,$5,$6,false)
RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var id int64
	if err := r.pool.QueryRow(ctx, q,
		a.Email, a.PasswordHash, a.Fullname, a.Discord, a.Age, a.VerificationCode,
	).Scan(&id); err != nil {
		if isEmailConflict(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

func (r *AccountsRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const q = `
SELECT id, email, password_hash, fullname, discord, age, verification_code, is_verified, created_at, updated_at
FROM users WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var a domain.Account
	if err := r.pool.QueryRow(ctx, q, email).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Fullname, &a.Discord, &a.Age,
		&a.VerificationCode, &a.IsVerified, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (r *AccountsRepoImpl) CountByEmail(ctx context.Context, email string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE email=$1`, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailUniqueConstraint
}
