package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/google/uuid"
)

const (
	accountColumns  = `id, email, name, avatar_public_id, avatar_url, verified, otp, otp_expiry, reset_otp, reset_otp_expiry, created_at`
	emailConstraint = "accounts_email_key"
	passwordHashCol = `, password_hash`
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func selectAccount(o findOptions, where string) string {
	cols := accountColumns
	if o.withPasswordHash {
		cols += passwordHashCol
	}
	return `SELECT ` + cols + ` FROM accounts WHERE ` + where
}

func challengeArgs(c *models.Challenge) (any, any) {
	if c == nil {
		return nil, nil
	}
	return int64(c.Code), c.ExpiresAt.UTC()
}

func nullChallenge(code sql.NullInt64, exp sql.NullTime) *models.Challenge {
	if !code.Valid || !exp.Valid {
		return nil
	}
	return &models.Challenge{Code: int(code.Int64), ExpiresAt: exp.Time.UTC()}
}

func (r *PostgresRepository) queryOne(ctx context.Context, o findOptions, where string, args ...any) (*models.Account, error) {
	var (
		a                  models.Account
		otp, resetOTP      sql.NullInt64
		otpExp, resetOTPEx sql.NullTime
	)

	dest := []any{&a.ID, &a.Email, &a.Name, &a.Avatar.ID, &a.Avatar.URL, &a.Verified,
		&otp, &otpExp, &resetOTP, &resetOTPEx, &a.CreatedAt}
	if o.withPasswordHash {
		dest = append(dest, &a.PasswordHash)
	}

	err := r.db.QueryRowContext(ctx, selectAccount(o, where), args...).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.Verification = nullChallenge(otp, otpExp)
	a.Reset = nullChallenge(resetOTP, resetOTPEx)
	a.CreatedAt = a.CreatedAt.UTC()

	return &a, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.Account, error) {
	return r.queryOne(ctx, applyFindOptions(opts), `email = $1`, email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrNotFound
	}
	return r.queryOne(ctx, applyFindOptions(opts), `id = $1`, id)
}

func (r *PostgresRepository) FindByResetOTP(ctx context.Context, code int, now time.Time) (*models.Account, error) {
	return r.queryOne(ctx, findOptions{}, `reset_otp = $1 AND reset_otp_expiry > $2 LIMIT 1`, int64(code), now.UTC())
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) error {
	query :=
		`INSERT INTO accounts (id, email, password_hash, name, avatar_public_id, avatar_url, verified, otp, otp_expiry, reset_otp, reset_otp_expiry)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at
		 `

	id := uuid.NewString()
	otp, otpExp := challengeArgs(account.Verification)
	resetOTP, resetOTPExp := challengeArgs(account.Reset)

	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query,
		id, account.Email, account.PasswordHash, account.Name, account.Avatar.ID, account.Avatar.URL,
		account.Verified, otp, otpExp, resetOTP, resetOTPExp).Scan(&createdAt)

	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return common.ErrDuplicateAccount
		}
		return fmt.Errorf("db error: %w", err)
	}

	account.ID = id
	account.CreatedAt = createdAt.UTC()
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, account *models.Account) error {
	if _, err := uuid.Parse(account.ID); err != nil {
		return common.ErrNotFound
	}

	query :=
		`UPDATE accounts
		 SET name = $2, avatar_public_id = $3, avatar_url = $4, verified = $5,
		     otp = $6, otp_expiry = $7, reset_otp = $8, reset_otp_expiry = $9,
		     password_hash = COALESCE(NULLIF($10, ''), password_hash)
		 WHERE id = $1
		 `

	otp, otpExp := challengeArgs(account.Verification)
	resetOTP, resetOTPExp := challengeArgs(account.Reset)

	res, err := r.db.ExecContext(ctx, query,
		account.ID, account.Name, account.Avatar.ID, account.Avatar.URL, account.Verified,
		otp, otpExp, resetOTP, resetOTPExp, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
