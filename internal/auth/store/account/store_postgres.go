package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
)

const accountColumns = `id, email, password_hash, role, verified,
	profile_name, profile_phone, profile_location,
	failed_login_count, locked_until,
	reset_token_hash, reset_token_expires, reset_token_purpose,
	version, created_at, updated_at`

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, verified,
			profile_name, profile_phone, profile_location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(account.ID), models.NormalizeEmail(account.Email), account.PasswordHash,
		string(account.Role), account.Verified,
		account.Profile.Name, account.Profile.Phone, account.Profile.Location,
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uuid.UUID(accountID))
	return scanAccount(row, "find account by id")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`, models.NormalizeEmail(email))
	return scanAccount(row, "find account by email")
}

func (s *PostgresStore) FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token_hash = $1`, tokenHash)
	return scanAccount(row, "find account by reset token")
}

// RecordFailedAttempt applies policy to the row's lock state while holding
// the row lock, so concurrent failures queue instead of racing.
func (s *PostgresStore) RecordFailedAttempt(ctx context.Context, accountID id.AccountID, policy lockout.Policy, now time.Time) (lockout.Transition, error) {
	var result lockout.Transition
	err := s.withLockState(ctx, accountID, "record failed attempt", func(tx *sql.Tx, state lockout.State) error {
		result = policy.RecordFailure(state, now)
		if result.AlreadyLocked {
			return nil
		}
		return writeLockState(ctx, tx, accountID, result.State, now)
	})
	if err != nil {
		return lockout.Transition{}, err
	}
	return result, nil
}

// RecordSuccess clears the counter unless a lock is still live at now, in
// which case it returns sentinel.ErrLocked and leaves the row alone.
func (s *PostgresStore) RecordSuccess(ctx context.Context, accountID id.AccountID, now time.Time) error {
	return s.withLockState(ctx, accountID, "record login success", func(tx *sql.Tx, state lockout.State) error {
		if state.LockedUntil != nil && state.LockedUntil.After(now) {
			return fmt.Errorf("record login success: %w", sentinel.ErrLocked)
		}
		return writeLockState(ctx, tx, accountID, lockout.State{}, now)
	})
}

// withLockState reads the lock columns with SELECT ... FOR UPDATE and runs fn
// in the same transaction. fn returning an error rolls back.
func (s *PostgresStore) withLockState(ctx context.Context, accountID id.AccountID, op string, fn func(tx *sql.Tx, state lockout.State) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		count       int
		lockedUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT failed_login_count, locked_until FROM accounts WHERE id = $1 FOR UPDATE
	`, uuid.UUID(accountID)).Scan(&count, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
		return fmt.Errorf("%s: read lockout state: %w", op, err)
	}

	state := lockout.State{FailedLoginCount: count}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		state.LockedUntil = &t
	}
	if err := fn(tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func writeLockState(ctx context.Context, tx *sql.Tx, accountID id.AccountID, state lockout.State, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_count = $2, locked_until = $3, version = version + 1, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(accountID), state.FailedLoginCount, nullTime(state.LockedUntil), now)
	if err != nil {
		return fmt.Errorf("write lockout state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPassword(ctx context.Context, accountID id.AccountID, passwordHash string, now time.Time) error {
	return s.exec(ctx, "set password", `
		UPDATE accounts
		SET password_hash = $2,
			reset_token_hash = NULL, reset_token_expires = NULL, reset_token_purpose = NULL,
			failed_login_count = 0, locked_until = NULL,
			version = version + 1, updated_at = $3
		WHERE id = $1
	`, uuid.UUID(accountID), passwordHash, now)
}

func (s *PostgresStore) StoreResetToken(ctx context.Context, accountID id.AccountID, token models.ResetToken, now time.Time) error {
	return s.exec(ctx, "store reset token", `
		UPDATE accounts
		SET reset_token_hash = $2, reset_token_expires = $3, reset_token_purpose = $4,
			version = version + 1, updated_at = $5
		WHERE id = $1
	`, uuid.UUID(accountID), token.TokenHash, token.ExpiresAt, string(token.Purpose), now)
}

func (s *PostgresStore) ClearResetToken(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) error {
	return s.exec(ctx, "clear reset token", `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_token_expires = NULL, reset_token_purpose = NULL,
			version = version + 1, updated_at = $3
		WHERE id = $1 AND reset_token_hash = $2
	`, uuid.UUID(accountID), tokenHash, now)
}

// ConsumeResetToken is the single-use gate: only one caller can match the
// hash before it is cleared.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, accountID id.AccountID, tokenHash, passwordHash string, now time.Time) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET password_hash = $3,
			reset_token_hash = NULL, reset_token_expires = NULL, reset_token_purpose = NULL,
			failed_login_count = 0, locked_until = NULL,
			version = version + 1, updated_at = $4
		WHERE id = $1 AND reset_token_hash = $2
			AND reset_token_purpose = $5 AND reset_token_expires > $4
		RETURNING `+accountColumns,
		uuid.UUID(accountID), tokenHash, passwordHash, now, string(models.PurposePasswordReset))
	return scanAccount(row, "consume reset token")
}

func (s *PostgresStore) MarkVerified(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET verified = TRUE,
			reset_token_hash = NULL, reset_token_expires = NULL, reset_token_purpose = NULL,
			version = version + 1, updated_at = $3
		WHERE id = $1 AND reset_token_hash = $2
			AND reset_token_purpose = $4 AND reset_token_expires > $3
		RETURNING `+accountColumns,
		uuid.UUID(accountID), tokenHash, now, string(models.PurposeEmailVerification))
	return scanAccount(row, "mark verified")
}

func (s *PostgresStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_token_expires = NULL, reset_token_purpose = NULL,
			version = version + 1, updated_at = $1
		WHERE reset_token_expires IS NOT NULL AND reset_token_expires <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens rows: %w", err)
	}
	return int(rows), nil
}

// exec runs a single-row UPDATE and maps zero affected rows to ErrNotFound.
func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, op string) (*models.Account, error) {
	var (
		a            models.Account
		accountID    uuid.UUID
		role         string
		lockedUntil  sql.NullTime
		tokenHash    sql.NullString
		tokenExpires sql.NullTime
		tokenPurpose sql.NullString
	)
	err := row.Scan(&accountID, &a.Email, &a.PasswordHash, &role, &a.Verified,
		&a.Profile.Name, &a.Profile.Phone, &a.Profile.Location,
		&a.FailedLoginCount, &lockedUntil,
		&tokenHash, &tokenExpires, &tokenPurpose,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.ID = id.AccountID(accountID)
	a.Role = models.Role(role)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	if tokenHash.Valid && tokenExpires.Valid && tokenPurpose.Valid {
		a.ResetToken = &models.ResetToken{
			TokenHash: tokenHash.String,
			ExpiresAt: tokenExpires.Time,
			Purpose:   models.TokenPurpose(tokenPurpose.String),
		}
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
