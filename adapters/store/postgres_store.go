package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/ports"
)

const uniqueViolation = "23505"

const identityColumns = `id, email, wallet_address, name, extra, role, password_hash,
	email_verification, verification_code, verification_expires_at,
	password_reset_token, password_reset_expires_at,
	kyc_status, kyc_inquiry_id, last_login_at, created_at, updated_at`

// PostgresStore is a postgres implementation of the IdentityStore interface
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ ports.IdentityStore = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and applies migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	if err := Migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// FindByID treats ids that are not UUIDs as unknown. Vendor reference ids
// are free-form.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*core.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrNotFound
	}
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) FindByWallet(ctx context.Context, address string) (*core.Identity, error) {
	return s.findOne(ctx, `WHERE lower(wallet_address) = $1`, core.NormalizeWallet(address))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*core.Identity, error) {
	return s.findOne(ctx, `WHERE lower(email) = $1`, core.NormalizeEmail(email))
}

func (s *PostgresStore) FindByVerificationCode(ctx context.Context, code string, now time.Time) (*core.Identity, error) {
	return s.findOne(ctx, `WHERE verification_code = $1 AND verification_expires_at >= $2
		ORDER BY verification_expires_at DESC LIMIT 1`, code, now)
}

func (s *PostgresStore) FindByResetToken(ctx context.Context, token string) (*core.Identity, error) {
	return s.findOne(ctx, `WHERE password_reset_token = $1`, token)
}

func (s *PostgresStore) FindByKYCInquiry(ctx context.Context, inquiryID string) (*core.Identity, error) {
	return s.findOne(ctx, `WHERE kyc_inquiry_id = $1`, inquiryID)
}

func (s *PostgresStore) Create(ctx context.Context, identity *core.Identity) error {
	args, err := identityArgs(identity)
	if err != nil {
		return err
	}

	query := `INSERT INTO identities (` + identityColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return mapWriteError("create identity", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, identity *core.Identity) error {
	args, err := identityArgs(identity)
	if err != nil {
		return err
	}

	query := `UPDATE identities SET
				email = $2, wallet_address = $3, name = $4, extra = $5, role = $6, password_hash = $7,
				email_verification = $8, verification_code = $9, verification_expires_at = $10,
				password_reset_token = $11, password_reset_expires_at = $12,
				kyc_status = $13, kyc_inquiry_id = $14, last_login_at = $15, created_at = $16, updated_at = $17
			  WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError("save identity", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*core.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ` + where
	identity, err := scanIdentity(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, core.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func identityArgs(i *core.Identity) ([]any, error) {
	extra := i.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra: %w", err)
	}

	return []any{
		i.ID,
		nullString(i.Email),
		nullString(i.WalletAddress),
		i.Name,
		string(extraJSON),
		i.Role.String(),
		i.PasswordHash,
		string(i.EmailVerification),
		nullString(i.VerificationCode),
		nullTime(i.VerificationExpiresAt),
		nullString(i.PasswordResetToken),
		nullTime(i.PasswordResetExpiresAt),
		string(i.KYCStatus),
		nullString(i.KYCInquiryID),
		nullTime(i.LastLoginAt),
		i.CreatedAt,
		i.UpdatedAt,
	}, nil
}

func scanIdentity(row pgx.Row) (*core.Identity, error) {
	var (
		i                                          core.Identity
		email, wallet, code, resetToken, inquiryID *string
		codeExpiry, resetExpiry, lastLogin         *time.Time
		extraJSON                                  []byte
		role, verification, kyc                    string
	)

	err := row.Scan(
		&i.ID, &email, &wallet, &i.Name, &extraJSON, &role, &i.PasswordHash,
		&verification, &code, &codeExpiry,
		&resetToken, &resetExpiry,
		&kyc, &inquiryID, &lastLogin, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if i.Role, err = core.ParseRole(role); err != nil {
		return nil, err
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &i.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
		}
	}

	i.Email = deref(email)
	i.WalletAddress = deref(wallet)
	i.EmailVerification = core.EmailVerification(verification)
	i.VerificationCode = deref(code)
	i.VerificationExpiresAt = derefTime(codeExpiry)
	i.PasswordResetToken = deref(resetToken)
	i.PasswordResetExpiresAt = derefTime(resetExpiry)
	i.KYCStatus = core.KYCStatus(kyc)
	i.KYCInquiryID = deref(inquiryID)
	i.LastLoginAt = derefTime(lastLogin)

	return &i, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
